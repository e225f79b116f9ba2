// Package ui renders command output: status lines, SQL, entity tables and
// query results.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	sqlStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SecondaryColor).
			Padding(0, 1)
)

// Printer writes styled output. Errors go to Err, everything else to Out.
type Printer struct {
	Out io.Writer
	Err io.Writer
	// Width is the wrap width for boxes and markdown. Zero means the
	// terminal width, or 80.
	Width int
}

// New returns a printer on stdout and stderr.
func New() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

func (p *Printer) width() int {
	if p.Width > 0 {
		return p.Width
	}
	if w := pterm.GetTerminalWidth(); w > 0 {
		return w
	}
	return 80
}

// Header prints a title with a dimmed subtitle.
func (p *Printer) Header(title, subtitle string) {
	fmt.Fprintln(p.Out, TitleStyle.Render(title))
	if subtitle != "" {
		fmt.Fprintln(p.Out, SecondaryStyle.Render(subtitle))
	}
	fmt.Fprintln(p.Out)
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Error prints an error message.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// Info prints an info message.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, InfoStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// Step prints a step indicator.
func (p *Printer) Step(step, total int, message string) {
	fmt.Fprintf(p.Out, "%s %s\n", SecondaryStyle.Render(fmt.Sprintf("[%d/%d]", step, total)), message)
}

// SQL prints a rendered statement in a box followed by its arguments. The
// statement is not wrapped so it can be copied as is.
func (p *Printer) SQL(dialect, sql string, args []any) {
	fmt.Fprintln(p.Out, SecondaryStyle.Render(" "+dialect+" "))
	fmt.Fprintln(p.Out, sqlStyle.Render(sql))
	if len(args) == 0 {
		return
	}
	c := color.New(color.FgCyan)
	for i, a := range args {
		c.Fprintf(p.Out, "  %d: ", i+1)
		fmt.Fprintf(p.Out, "%v (%T)\n", a, a)
	}
}

// Table prints rows under a header using pterm.
func (p *Printer) Table(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Out, out)
	return nil
}

// Entities prints one table row per entity.
func (p *Printer) Entities(entities []*schema.Entity) error {
	rows := make([][]string, len(entities))
	for i, e := range entities {
		rows[i] = []string{e.Name, e.Table, keyOf(e), columnList(e), navigationList(e), kindOf(e)}
	}
	return p.Table([]string{"Entity", "Table", "Key", "Columns", "Navigations", "Kind"}, rows)
}

// EntitiesMarkdown describes entities as markdown, one section each.
func EntitiesMarkdown(entities []*schema.Entity) string {
	var b strings.Builder
	b.WriteString("# Entities\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "\n## %s\n\nTable `%s` (%s)\n\n", e.Name, e.Table, kindOf(e))
		b.WriteString("| Member | Column | Key |\n|---|---|---|\n")
		for _, c := range e.Columns {
			key := ""
			if c.PrimaryKey {
				key = "yes"
			}
			fmt.Fprintf(&b, "| %s | `%s` | %s |\n", c.Member, c.Name, key)
		}
		if len(e.Navigations) > 0 {
			b.WriteString("\n")
			for _, n := range e.Navigations {
				fmt.Fprintf(&b, "- **%s** → %s (%s via %s)\n", n.Member, n.Target, n.Kind, n.ForeignKey)
			}
		}
	}
	return b.String()
}

// Markdown renders markdown content with glamour.
func (p *Printer) Markdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(p.width()),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(p.Out, out)
	return nil
}

// Rows prints query results. Map rows are printed with sorted keys.
func (p *Printer) Rows(rows []map[string]any) error {
	if len(rows) == 0 {
		p.Info("no rows")
		return nil
	}
	var headers []string
	for k := range rows[0] {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = make([]string, len(headers))
		for j, h := range headers {
			data[i][j] = formatValue(row[h])
		}
	}
	if err := p.Table(headers, data); err != nil {
		return err
	}
	fmt.Fprintln(p.Out, SecondaryStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
	return nil
}

// Spinner starts a spinner on Out. It returns nil when Out is not an
// interactive stdout.
func (p *Printer) Spinner(message string) (*pterm.SpinnerPrinter, error) {
	if p.Out != io.Writer(os.Stdout) || color.NoColor {
		return nil, nil
	}
	return pterm.DefaultSpinner.WithWriter(p.Out).Start(message)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func keyOf(e *schema.Entity) string {
	if pk := e.PrimaryKey(); pk != nil {
		return pk.Member
	}
	return ""
}

func columnList(e *schema.Entity) string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Member
	}
	return strings.Join(names, ", ")
}

func navigationList(e *schema.Entity) string {
	names := make([]string, len(e.Navigations))
	for i, n := range e.Navigations {
		names[i] = n.Member + "→" + n.Target
	}
	return strings.Join(names, ", ")
}

func kindOf(e *schema.Entity) string {
	if e.GoType == nil {
		return "dynamic"
	}
	return "typed"
}
