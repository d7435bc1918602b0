package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"genie-backend/internal/chart"
	"genie-backend/internal/chat"
	"genie-backend/internal/table"
	"genie-backend/pkg/api"

	"github.com/charmbracelet/lipgloss"
)

const (
	maxCellWidth = 40
	maxBarWidth  = 40
)

type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	errorText lipgloss.Style
	query     lipgloss.Style
	header    lipgloss.Style
	dim       lipgloss.Style
	bar       func(color string) lipgloss.Style
}

// terminalRenderer draws the transcript as plain lines. It remembers the
// table and chart of the latest answer so they can be paged and plotted.
type terminalRenderer struct {
	out    io.Writer
	styles styles

	mu    sync.Mutex
	table *table.Pager
	chart *chart.Config
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	r := lipgloss.NewRenderer(out)
	return &terminalRenderer{
		out: out,
		styles: styles{
			user: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")),
			assistant: r.NewStyle().
				Foreground(lipgloss.Color("255")),
			errorText: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196")),
			query: r.NewStyle().
				Italic(true).
				Foreground(lipgloss.Color("243")),
			header: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62")),
			dim: r.NewStyle().
				Foreground(lipgloss.Color("240")),
			bar: func(color string) lipgloss.Style {
				return r.NewStyle().Foreground(lipgloss.Color(color))
			},
		},
	}
}

func (r *terminalRenderer) AppendMessage(msg chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Role {
	case chat.RoleUser:
		fmt.Fprintln(r.out, r.styles.user.Render("You:")+" "+msg.Text)
	case chat.RoleError:
		fmt.Fprintln(r.out, r.styles.errorText.Render("Error: "+msg.Text))
	default:
		fmt.Fprintln(r.out, r.styles.assistant.Render("Genie: "+msg.Text))
		if msg.Query != "" {
			fmt.Fprintln(r.out, r.styles.query.Render("SQL: "+msg.Query))
		}
		if pager := msg.NewPager(); pager != nil {
			r.table, r.chart = pager, msg.Chart
			r.writeTable()
			if msg.Chart != nil {
				fmt.Fprintln(r.out, r.styles.dim.Render(fmt.Sprintf("Type :chart to plot %s by %s", msg.Chart.YColumn, msg.Chart.XColumn)))
			}
		}
	}
}

func (r *terminalRenderer) ShowLoading() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.dim.Render("Genie is thinking..."))
}

// HideLoading is a no-op: output is line based and the indicator scrolls away.
func (r *terminalRenderer) HideLoading() {}

func (r *terminalRenderer) SetInputEnabled(enabled bool) {
	if enabled {
		r.Prompt()
	}
}

func (r *terminalRenderer) Prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, "> ")
}

func (r *terminalRenderer) Info(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.dim.Render(text))
}

func (r *terminalRenderer) NextPage() {
	r.page(func(p *table.Pager) bool { return p.Next() }, "Already on the last page")
}

func (r *terminalRenderer) PrevPage() {
	r.page(func(p *table.Pager) bool { return p.Prev() }, "Already on the first page")
}

func (r *terminalRenderer) page(move func(*table.Pager) bool, edge string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table == nil {
		fmt.Fprintln(r.out, r.styles.dim.Render("No table to page through"))
		return
	}
	if !move(r.table) {
		fmt.Fprintln(r.out, r.styles.dim.Render(edge))
		return
	}
	r.writeTable()
}

func (r *terminalRenderer) ShowChart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chart == nil {
		fmt.Fprintln(r.out, r.styles.dim.Render("No chart for the latest answer"))
		return
	}
	fmt.Fprint(r.out, r.renderChart(r.chart))
}

func (r *terminalRenderer) ShowHistory(items []api.HistoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(items) == 0 {
		fmt.Fprintln(r.out, r.styles.dim.Render("No recorded history"))
		return
	}
	for _, item := range items {
		line := fmt.Sprintf("[%s] %s %q", item.Timestamp, item.Kind, item.Message)
		if item.Error != "" {
			line += " -> " + strconv.Itoa(item.StatusCode) + " " + item.Error
		} else if item.Response != "" {
			line += " -> " + item.Response
		}
		fmt.Fprintln(r.out, r.styles.dim.Render(line))
	}
}

func (r *terminalRenderer) writeTable() {
	fmt.Fprint(r.out, r.renderTable(r.table))
	if r.table.ShowControls() {
		controls := r.table.Label()
		if r.table.HasPrev() {
			controls += "  :prev"
		}
		if r.table.HasNext() {
			controls += "  :next"
		}
		fmt.Fprintln(r.out, r.styles.dim.Render(controls))
	}
}

func (r *terminalRenderer) renderTable(p *table.Pager) string {
	header := p.Header()
	body := p.Body()

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(truncate(h))
	}
	for _, row := range body {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(truncate(cell)))
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		for i, cell := range cells {
			text := pad(truncate(cell), widths[i])
			if style != nil {
				text = style.Render(text)
			}
			if i > 0 {
				sb.WriteString(" │ ")
			}
			sb.WriteString(text)
		}
		sb.WriteString("\n")
	}

	writeRow(header, &r.styles.header)
	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(strings.Repeat("─", total+3*max(len(widths)-1, 0)))
	sb.WriteString("\n")
	for _, row := range body {
		writeRow(row, nil)
	}
	return sb.String()
}

func (r *terminalRenderer) renderChart(cfg *chart.Config) string {
	if len(cfg.Data.Datasets) == 0 {
		return ""
	}
	dataset := cfg.Data.Datasets[0]

	labelWidth := 0
	for _, label := range cfg.Data.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(truncate(label)))
	}

	peak := 0.0
	for _, v := range dataset.Data {
		if v != nil && *v > peak {
			peak = *v
		}
	}

	var sb strings.Builder
	sb.WriteString(r.styles.header.Render(fmt.Sprintf("%s chart: %s by %s", cfg.Type, cfg.YColumn, cfg.XColumn)))
	sb.WriteString("\n")

	for i, label := range cfg.Data.Labels {
		sb.WriteString(pad(truncate(label), labelWidth))
		sb.WriteString(" │ ")

		v := dataset.Data[i]
		if v == nil {
			sb.WriteString("-\n")
			continue
		}

		width := 0
		if peak > 0 && *v > 0 {
			width = int(*v / peak * maxBarWidth)
		}
		sb.WriteString(r.styles.bar(barColor(dataset, i)).Render(strings.Repeat("█", width)))
		sb.WriteString(" ")
		sb.WriteString(strconv.FormatFloat(*v, 'f', -1, 64))
		sb.WriteString("\n")
	}
	return sb.String()
}

func barColor(dataset chart.Dataset, i int) string {
	if colors, ok := dataset.BackgroundColor.([]string); ok && len(colors) > 0 {
		return colors[i%len(colors)]
	}
	if color, ok := dataset.BorderColor.(string); ok {
		return color
	}
	return chart.LineColor
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellWidth {
		return s
	}
	return string(runes[:maxCellWidth-1]) + "…"
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
