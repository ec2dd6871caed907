package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/pathutil"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithLockConfig(cfg LockConfig) StoreOption {
	return func(s *Store) { s.lockCfg = cfg }
}

// Store reads and writes templates under a root directory. Mutations hold an
// exclusive file lock on the root.
type Store struct {
	root    string
	now     func() time.Time
	lockCfg LockConfig
}

func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{root: root, now: time.Now, lockCfg: DefaultLockConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) dir(id ID) string {
	return filepath.Join(s.root, id.Topic, id.Style)
}

// List returns every template sorted by id. A missing root is an empty list.
func (s *Store) List(ctx context.Context) ([]*Template, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*", MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}

	active, _ := s.activeID()
	templates := make([]*Template, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Dir(path)
		id, err := ParseID(filepath.Base(filepath.Dir(dir)) + "/" + filepath.Base(dir))
		if err != nil {
			slog.Debug("Skipping template directory", "dir", dir, "error", err)
			continue
		}
		tmpl, err := s.load(id)
		if err != nil {
			slog.Warn("Skipping unreadable template", "id", id, "error", err)
			continue
		}
		tmpl.Active = tmpl.ID == active
		templates = append(templates, tmpl)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (s *Store) Get(ctx context.Context, rawID string) (*Template, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.load(id)
	if err != nil {
		return nil, err
	}
	active, _ := s.activeID()
	tmpl.Active = tmpl.ID == active
	return tmpl, nil
}

func (s *Store) load(id ID) (*Template, error) {
	dir := s.dir(id)
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound(fmt.Sprintf("template %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", id, err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, MetadataFile), err)
	}
	tmpl.Topic, tmpl.Style = id.Topic, id.Style
	tmpl.ID = id.String()
	tmpl.Dir = dir
	if tmpl.Name == "" {
		tmpl.Name = tmpl.ID
	}
	return &tmpl, nil
}

// Create writes a new template. It fails if the id is already taken.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Template, error) {
	id, err := ParseID(in.ID)
	if err != nil {
		return nil, err
	}

	var tmpl *Template
	err = s.withLock(ctx, func() error {
		dir := s.dir(id)
		if _, err := os.Stat(filepath.Join(dir, MetadataFile)); err == nil {
			return apperrors.InvalidInput(fmt.Sprintf("template %s already exists", id))
		}
		if err := os.MkdirAll(filepath.Join(dir, ReferencesDir), 0755); err != nil {
			return fmt.Errorf("create template directory: %w", err)
		}

		now := s.now().UTC()
		tmpl = &Template{
			ID:                id.String(),
			Topic:             id.Topic,
			Style:             id.Style,
			Name:              strings.TrimSpace(in.Name),
			Description:       strings.TrimSpace(in.Description),
			Audience:          strings.TrimSpace(in.Audience),
			VisualPreferences: strings.TrimSpace(in.VisualPreferences),
			AspectRatio:       strings.TrimSpace(in.AspectRatio),
			Tags:              in.Tags,
			CreatedAt:         now,
			UpdatedAt:         now,
			Dir:               dir,
		}
		if tmpl.Name == "" {
			tmpl.Name = id.String()
		}

		guide := in.StyleGuide
		if strings.TrimSpace(guide) == "" {
			guide = defaultStyleGuide(tmpl)
		}
		if err := writeFile(filepath.Join(dir, StyleGuideFile), guide); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, DomainKnowledgeFile), in.DomainKnowledge); err != nil {
			return err
		}
		return s.saveMetadata(tmpl)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Created template", "id", tmpl.ID, "dir", tmpl.Dir)
	return tmpl, nil
}

// Delete removes the template directory and clears it as the active template.
func (s *Store) Delete(ctx context.Context, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	err = s.withLock(ctx, func() error {
		dir := s.dir(id)
		if _, err := os.Stat(filepath.Join(dir, MetadataFile)); errors.Is(err, fs.ErrNotExist) {
			return apperrors.NotFound(fmt.Sprintf("template %s", id))
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("delete template %s: %w", id, err)
		}

		// drop the topic directory once its last style is gone
		_ = os.Remove(filepath.Dir(dir))

		if active, _ := s.activeID(); active == id.String() {
			if err := os.Remove(filepath.Join(s.root, ActiveFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("clear active template: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Deleted template", "id", id)
	return nil
}

func (s *Store) StyleGuide(ctx context.Context, rawID string) (string, error) {
	return s.readText(rawID, StyleGuideFile)
}

// DomainKnowledge returns the domain knowledge text, empty when unset.
func (s *Store) DomainKnowledge(ctx context.Context, rawID string) (string, error) {
	return s.readText(rawID, DomainKnowledgeFile)
}

func (s *Store) SetDomainKnowledge(ctx context.Context, rawID, text string) error {
	tmpl, err := s.Get(ctx, rawID)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		if err := writeFile(filepath.Join(tmpl.Dir, DomainKnowledgeFile), text); err != nil {
			return err
		}
		return s.touch(tmpl)
	})
}

// ReferenceDir returns the template's references directory, creating it if
// needed.
func (s *Store) ReferenceDir(ctx context.Context, rawID string) (string, error) {
	tmpl, err := s.Get(ctx, rawID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(tmpl.Dir, ReferencesDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create references directory: %w", err)
	}
	return dir, nil
}

// SetActiveReference records path as the template's style reference. Paths
// inside the template directory are stored relative to it.
func (s *Store) SetActiveReference(ctx context.Context, rawID, path string) error {
	tmpl, err := s.Get(ctx, rawID)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve reference path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return apperrors.NotFound(fmt.Sprintf("reference image %s", abs))
	}

	stored := abs
	if pathutil.Within(tmpl.Dir, abs) {
		if rel, err := filepath.Rel(tmpl.Dir, abs); err == nil {
			stored = rel
		}
	}

	return s.withLock(ctx, func() error {
		if err := writeFile(filepath.Join(tmpl.Dir, ActiveReferenceFile), stored+"\n"); err != nil {
			return err
		}
		return s.touch(tmpl)
	})
}

// ActiveReference returns the absolute path of the style reference, or ""
// when none is set.
func (s *Store) ActiveReference(ctx context.Context, rawID string) (string, error) {
	ref, err := s.readText(rawID, ActiveReferenceFile)
	if err != nil || ref == "" {
		return "", err
	}
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	id, _ := ParseID(rawID)
	return filepath.Join(s.dir(id), ref), nil
}

func (s *Store) SetActive(ctx context.Context, rawID string) error {
	tmpl, err := s.Get(ctx, rawID)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		return writeFile(filepath.Join(s.root, ActiveFile), tmpl.ID+"\n")
	})
}

// Active returns the active template. ErrNotFound when none is set or the
// recorded template no longer exists.
func (s *Store) Active(ctx context.Context) (*Template, error) {
	id, err := s.activeID()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.NotFound("no active template")
	}
	return s.Get(ctx, id)
}

func (s *Store) activeID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ActiveFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read active template: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) readText(rawID, name string) (string, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return "", err
	}
	dir := s.dir(id)
	if _, err := os.Stat(filepath.Join(dir, MetadataFile)); errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.NotFound(fmt.Sprintf("template %s", id))
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) touch(tmpl *Template) error {
	tmpl.UpdatedAt = s.now().UTC()
	return s.saveMetadata(tmpl)
}

func (s *Store) saveMetadata(tmpl *Template) error {
	data, err := yaml.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("encode template %s: %w", tmpl.ID, err)
	}
	return writeFile(filepath.Join(tmpl.Dir, MetadataFile), string(data))
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create template root: %w", err)
	}
	lock, err := acquireLock(ctx, s.root, s.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}

func writeFile(path, content string) error {
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
