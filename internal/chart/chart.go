package chart

import (
	"strings"

	"genie-backend/internal/table"

	"github.com/tidwall/gjson"
)

type Type string

const (
	Line Type = "line"
	Bar  Type = "bar"
)

// MaxPoints caps how many records are plotted. The table still shows every
// row.
const MaxPoints = 20

var Palette = []string{
	"#e10600",
	"#ffd700",
	"#00d2be",
	"#0600ef",
	"#ff8700",
	"#006f62",
	"#2b4562",
	"#900000",
	"#005aff",
	"#b6babd",
}

const (
	LineColor = "#e10600"
	LineFill  = "rgba(225, 6, 0, 0.2)"
)

var temporalMarkers = []string{"year", "date", "season"}

// Config is the input handed to the charting library.
type Config struct {
	Type    Type    `json:"type"`
	Data    Data    `json:"data"`
	Options Options `json:"options"`

	XColumn string `json:"-"`
	YColumn string `json:"-"`
}

type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string     `json:"label"`
	Data            []*float64 `json:"data"`
	BackgroundColor any        `json:"backgroundColor"`
	BorderColor     any        `json:"borderColor"`
	BorderWidth     int        `json:"borderWidth"`
	Fill            bool       `json:"fill"`
	Tension         float64    `json:"tension"`
}

type Options struct {
	Responsive bool   `json:"responsive"`
	Scales     Scales `json:"scales"`
}

type Scales struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

type Axis struct {
	Title       AxisTitle `json:"title"`
	BeginAtZero bool      `json:"beginAtZero,omitempty"`
}

type AxisTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

// Select picks a chart type and axes for records. It returns false when no
// column is numeric across every plotted record.
func Select(records []table.Record) (*Config, bool) {
	if len(records) > MaxPoints {
		records = records[:MaxPoints]
	}
	if len(records) == 0 {
		return nil, false
	}

	columns := records[0].Columns()
	numeric := numericColumns(records, columns)
	if len(numeric) == 0 {
		return nil, false
	}

	chartType := Bar
	if hasTemporalColumn(columns) {
		chartType = Line
	}

	x := columns[0]
	for _, col := range columns {
		if !numeric[col] {
			x = col
			break
		}
	}

	y := ""
	for _, col := range columns {
		if numeric[col] && col != x {
			y = col
			break
		}
	}
	if y == "" {
		y = x
	}

	labels := make([]string, len(records))
	points := make([]*float64, len(records))
	for i, rec := range records {
		labels[i] = rec.Text(x)
		if v := rec.Get(y); v.Type == gjson.Number {
			n := v.Num
			points[i] = &n
		}
	}

	dataset := Dataset{Label: y, Data: points, BorderWidth: 1}
	if chartType == Line {
		dataset.BackgroundColor = LineFill
		dataset.BorderColor = LineColor
		dataset.BorderWidth = 2
		dataset.Fill = true
		dataset.Tension = 0.3
	} else {
		colors := barColors(len(points))
		dataset.BackgroundColor = colors
		dataset.BorderColor = colors
	}

	return &Config{
		Type: chartType,
		Data: Data{Labels: labels, Datasets: []Dataset{dataset}},
		Options: Options{
			Responsive: true,
			Scales: Scales{
				X: Axis{Title: AxisTitle{Display: true, Text: x}},
				Y: Axis{Title: AxisTitle{Display: true, Text: y}, BeginAtZero: chartType == Bar},
			},
		},
		XColumn: x,
		YColumn: y,
	}, true
}

func numericColumns(records []table.Record, columns []string) map[string]bool {
	numeric := make(map[string]bool, len(columns))
	for _, col := range columns {
		ok := true
		for _, rec := range records {
			v := rec.Get(col)
			if v.Type != gjson.Number && v.Type != gjson.Null {
				ok = false
				break
			}
		}
		if ok {
			numeric[col] = true
		}
	}
	return numeric
}

func hasTemporalColumn(columns []string) bool {
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, marker := range temporalMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func barColors(n int) []string {
	colors := make([]string, n)
	for i := range colors {
		colors[i] = Palette[i%len(Palette)]
	}
	return colors
}
