package formatter

import (
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/coachviz/internal/provider"
	"github.com/harunnryd/coachviz/internal/template"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
	goodStyle    lipgloss.Style
	badStyle     lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
		goodStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		badStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func (f *TableFormatter) list(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) FormatTemplates(templates []*template.Template) (string, error) {
	if len(templates) == 0 {
		return "No templates found", nil
	}

	t := f.list("", "ID", "Name", "Audience", "Tags", "Updated")
	for _, tmpl := range templates {
		marker := ""
		if tmpl.Active {
			marker = "*"
		}
		t.Row(
			marker,
			tmpl.ID,
			truncateString(tmpl.Name, 24),
			tmpl.Audience,
			truncateString(strings.Join(tmpl.Tags, ", "), 25),
			formatTime(tmpl.UpdatedAt),
		)
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatTemplate(tmpl *template.Template) (string, error) {
	if tmpl == nil {
		return "No template found", nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.headerStyle
			}
			return f.cellStyle
		})

	t.Row("ID", tmpl.ID)
	t.Row("Name", tmpl.Name)
	t.Row("Description", truncateString(tmpl.Description, 60))
	t.Row("Audience", tmpl.Audience)
	t.Row("Visual Preferences", truncateString(tmpl.VisualPreferences, 60))
	t.Row("Aspect Ratio", tmpl.AspectRatio)
	t.Row("Tags", strings.Join(tmpl.Tags, ", "))
	t.Row("Active", yesNo(tmpl.Active))
	t.Row("Created", formatTime(tmpl.CreatedAt))
	t.Row("Updated", formatTime(tmpl.UpdatedAt))
	t.Row("Directory", tmpl.Dir)

	return t.String(), nil
}

func (f *TableFormatter) FormatProviders(rows []ProviderRow) (string, error) {
	if len(rows) == 0 {
		return "No providers configured", nil
	}

	t := f.list("Name", "Model", "Priority", "Enabled", "Default", "Credentials")
	for _, r := range rows {
		t.Row(
			r.Name,
			truncateString(r.Model, 40),
			strconv.Itoa(r.Priority),
			yesNo(r.Enabled),
			yesNo(r.Default),
			f.status(r.Credentials, "configured", "missing"),
		)
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatHealth(rows []HealthRow) (string, error) {
	if len(rows) == 0 {
		return "No providers configured", nil
	}

	t := f.list("Provider", "Status", "Last Checked", "Error")
	for _, r := range rows {
		t.Row(
			r.Provider,
			f.status(r.Healthy, "healthy", "unhealthy"),
			formatTime(r.LastChecked),
			truncateString(r.Error, 50),
		)
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatModels(models []provider.ModelInfo) (string, error) {
	if len(models) == 0 {
		return "No models found", nil
	}

	t := f.list("ID", "Owner", "Created")
	for _, m := range models {
		created := ""
		if m.Created > 0 {
			created = time.Unix(m.Created, 0).UTC().Format("2006-01-02")
		}
		t.Row(m.ID, m.OwnedBy, created)
	}
	return t.String(), nil
}

func (f *TableFormatter) status(ok bool, good, bad string) string {
	if ok {
		return f.goodStyle.Render(good)
	}
	return f.badStyle.Render(bad)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
