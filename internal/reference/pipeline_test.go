package reference

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/grid"
	"github.com/harunnryd/coachviz/internal/imagegen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateImage(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	args := m.Called(ctx, req)
	img, _ := args.Get(0).(*imagegen.Image)
	return img, args.Error(1)
}

func tinyPNG(t *testing.T, c color.Color) *imagegen.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &imagegen.Image{Data: buf.Bytes(), MIMEType: "image/png", Attempts: 1}
}

type sleepLog struct {
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newPipeline(gen ImageGenerator, apiKey string, sleeper *sleepLog) *Pipeline {
	return NewPipeline(gen, Config{APIKey: apiKey, Sleep: sleeper.sleep})
}

func TestGenerateReferenceGrid_AllSucceed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "refs")
	gen := new(MockGenerator)
	sleeper := &sleepLog{}
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(tinyPNG(t, color.RGBA{R: 200, A: 255}), nil).Times(4)

	result := newPipeline(gen, "key", sleeper).GenerateReferenceGrid(context.Background(), dir, "padel-bandeja", Options{
		Audience:   "junior",
		Resolution: grid.Resolution2K,
	})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 4, result.GeneratedCount)
	assert.Zero(t, result.FailedCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, apperrors.KindNone, result.Kind)
	assert.False(t, result.Padded)
	assert.Equal(t, 1, result.UniqueCount, "identical responses are reported")
	assert.Equal(t, filepath.Join(dir, "padel-bandeja.png"), result.GridPath)
	require.Len(t, result.IndividualPaths, 4)
	for i, path := range result.IndividualPaths {
		assert.Equal(t, filepath.Join(dir, "padel-bandeja-"+string(rune('1'+i))+".png"), path)
		assert.FileExists(t, path)
	}

	info, err := os.Stat(result.GridPath)
	require.NoError(t, err)
	assert.Equal(t, int((info.Size()+512)/1024), result.GridSizeKB)

	assert.Equal(t, []time.Duration{DefaultPacing, DefaultPacing, DefaultPacing}, sleeper.delays, "no pause after the last call")
	gen.AssertExpectations(t)
}

func TestGenerateReferenceGrid_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	gen := new(MockGenerator)
	ok := tinyPNG(t, color.RGBA{G: 200, A: 255})

	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(ok, nil).Once()
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(nil, apperrors.Transient("rate limited")).Once()
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(ok, nil).Once()
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(nil, apperrors.Content("no image data in response")).Once()

	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(context.Background(), dir, "grid", Options{})

	require.True(t, result.Success)
	assert.Equal(t, apperrors.KindPartialGeneration, result.Kind)
	assert.Equal(t, 2, result.GeneratedCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.Len(t, result.IndividualPaths, 2)
	require.Len(t, result.Errors, 2)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Image 2: "))
	assert.Contains(t, result.Errors[0], "rate limited")
	assert.True(t, strings.HasPrefix(result.Errors[1], "Image 4: "))
	assert.True(t, result.Padded)

	assert.FileExists(t, filepath.Join(dir, "grid.png"))
	assert.FileExists(t, filepath.Join(dir, "grid-1.png"))
	assert.NoFileExists(t, filepath.Join(dir, "grid-2.png"))
	assert.FileExists(t, filepath.Join(dir, "grid-3.png"))
	gen.AssertExpectations(t)
}

func TestGenerateReferenceGrid_TotalFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	gen := new(MockGenerator)
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return(nil, apperrors.Transient("service unavailable")).Times(4)

	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(context.Background(), dir, "grid", Options{})

	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindTotalGeneration, result.Kind)
	assert.Zero(t, result.GeneratedCount)
	assert.Equal(t, 4, result.FailedCount)
	assert.Len(t, result.Errors, 4)
	assert.Empty(t, result.GridPath)
	assert.Empty(t, result.IndividualPaths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	gen.AssertExpectations(t)
}

func TestGenerateReferenceGrid_MissingCredentials(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	gen := new(MockGenerator)

	result := newPipeline(gen, "", &sleepLog{}).GenerateReferenceGrid(context.Background(), dir, "grid", Options{})

	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindConfiguration, result.Kind)
	assert.Contains(t, result.Error, "API key")
	assert.NoDirExists(t, dir)
	gen.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestGenerateReferenceGrid_ForwardsReferenceAndKnowledge(t *testing.T) {
	gen := new(MockGenerator)
	ref := []byte("reference-image")
	encoded := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(ref)

	gen.On("GenerateImage", mock.Anything, mock.MatchedBy(func(req imagegen.Request) bool {
		return bytes.Equal(req.Reference, ref) &&
			req.ReferenceMIME == "image/jpeg" &&
			req.SystemInstruction == "Use padel terminology." &&
			req.ImageSize == "2K" &&
			req.AspectRatio == imagegen.DefaultAspectRatio &&
			req.APIKey == "key" &&
			strings.Contains(req.Prompt, "Visual preferences: warm palette")
	})).Return(tinyPNG(t, color.White), nil).Times(4)

	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(context.Background(), t.TempDir(), "grid", Options{
		VisualPreferences: "warm palette",
		ReferenceImage:    encoded,
		DomainKnowledge:   "  Use padel terminology.\n",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, grid.Resolution2K, result.Resolution)
	gen.AssertExpectations(t)
}

func TestGenerateReferenceGrid_InvalidReference(t *testing.T) {
	gen := new(MockGenerator)
	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(context.Background(), t.TempDir(), "grid", Options{
		ReferenceImage: "%%%not-base64",
	})
	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindInvalidInput, result.Kind)
	gen.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestGenerateReferenceGrid_CancelStopsBetweenCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := new(MockGenerator)
	gen.On("GenerateImage", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(tinyPNG(t, color.Black), nil).Once()

	dir := t.TempDir()
	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(ctx, dir, "grid", Options{})

	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindCanceled, result.Kind)
	assert.Equal(t, 1, result.GeneratedCount)
	assert.Equal(t, 3, result.FailedCount)
	require.Len(t, result.Errors, result.FailedCount)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Image 2:"))
	assert.True(t, strings.HasPrefix(result.Errors[2], "Image 4:"))
	assert.Empty(t, result.GridPath)
	assert.NoFileExists(t, filepath.Join(dir, "grid.png"))
	assert.FileExists(t, filepath.Join(dir, "grid-1.png"))
	gen.AssertExpectations(t)
}

func TestGenerateReferenceGrid_CancelDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := new(MockGenerator)
	gen.On("GenerateImage", mock.Anything, mock.Anything).
		Return(tinyPNG(t, color.Black), nil).Once()
	gen.On("GenerateImage", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	dir := t.TempDir()
	result := newPipeline(gen, "key", &sleepLog{}).GenerateReferenceGrid(ctx, dir, "grid", Options{})

	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindCanceled, result.Kind)
	assert.Equal(t, 1, result.GeneratedCount)
	assert.Equal(t, 3, result.FailedCount)
	assert.Len(t, result.Errors, 3)
	assert.NoFileExists(t, filepath.Join(dir, "grid.png"))
	gen.AssertExpectations(t)
}
