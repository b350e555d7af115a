// Package chart renders the temperature history as a coloured sparkline
// with minute ticks, a timeline and a low/high threshold scale bar.
package chart

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/scm10/internal/sensor"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var (
	colorCold = lipgloss.Color("39")  // blue
	colorHot  = lipgloss.Color("196") // red
	colorNear = lipgloss.Color("220") // yellow
	colorOK   = lipgloss.Color("78")  // soft green
	colorDim  = lipgloss.Color("236")
	colorTick = lipgloss.Color("239")
)

// Band is the alarm window drawn on the chart.
type Band struct {
	Low, High       float64
	HasLow, HasHigh bool
}

// near is the fraction of the band width treated as close to a limit.
const near = 0.05

// Color picks the colour for temperature v.
func (b Band) Color(v float64) lipgloss.Color {
	margin := 0.0
	if b.HasLow && b.HasHigh && b.High > b.Low {
		margin = (b.High - b.Low) * near
	}
	switch {
	case b.HasLow && v < b.Low:
		return colorCold
	case b.HasHigh && v > b.High:
		return colorHot
	case b.HasLow && v < b.Low+margin, b.HasHigh && v > b.High-margin:
		return colorNear
	default:
		return colorOK
	}
}

func (b Band) outside(v float64) bool {
	return (b.HasLow && v < b.Low) || (b.HasHigh && v > b.High)
}

// Range returns the y-axis span for samples, widened to include the
// enabled thresholds and padded by a few percent.
func Range(samples []sensor.Sample, b Band) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		lo = math.Min(lo, s.Kelvin)
		hi = math.Max(hi, s.Kelvin)
	}
	if b.HasLow {
		lo, hi = math.Min(lo, b.Low), math.Max(hi, b.Low)
	}
	if b.HasHigh {
		lo, hi = math.Min(lo, b.High), math.Max(hi, b.High)
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.01, 0.5)
	}
	return lo - pad, hi + pad
}

func isMinuteTick(samples []sensor.Sample, i int) bool {
	t := samples[i].Time
	if t.IsZero() {
		return false
	}
	if i == 0 {
		return t.Second() == 0
	}
	prev := samples[i-1].Time
	return !prev.IsZero() && t.Truncate(time.Minute) != prev.Truncate(time.Minute)
}

// RenderSparkline draws the last width samples, one block per sample,
// with a pipe at each minute boundary.
func RenderSparkline(samples []sensor.Sample, width int, rangeMin, rangeMax float64, b Band) string {
	if width <= 0 {
		return ""
	}
	dim := lipgloss.NewStyle().Foreground(colorDim)
	if len(samples) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < width-len(samples); i++ {
		sb.WriteString(dim.Render("╌"))
	}
	tick := lipgloss.NewStyle().Foreground(colorTick)
	for i, s := range samples {
		if isMinuteTick(samples, i) {
			sb.WriteString(tick.Render("│"))
			continue
		}
		norm := math.Max(0, math.Min(1, (s.Kelvin-rangeMin)/span))
		idx := min(int(norm*7), 7)
		style := lipgloss.NewStyle().Foreground(b.Color(s.Kelvin))
		if b.outside(s.Kelvin) {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// RenderTimeline places HH:MM labels under the sparkline's minute ticks.
func RenderTimeline(samples []sensor.Sample, width int) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	padLen := width - len(samples)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i := range samples {
		if !isMinuteTick(samples, i) {
			continue
		}
		label := samples[i].Time.Format("15:04")
		start := max(padLen+i-2, 0)
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		copy(line[start:], []rune(label))
		lastEnd = end
	}
	return lipgloss.NewStyle().Foreground(colorTick).Render(string(line))
}

// RenderThresholdScale draws a bar with the current reading as a
// diamond and the enabled thresholds as small squares.
func RenderThresholdScale(current, rangeMin, rangeMax float64, b Band, width int) string {
	if width <= 0 {
		return ""
	}
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - rangeMin) / span)
		return max(0, min(p, width-1))
	}

	lowPos, highPos := -1, -1
	if b.HasLow {
		lowPos = pos(b.Low)
	}
	if b.HasHigh {
		highPos = pos(b.High)
	}
	cur := pos(current)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case cur:
			sb.WriteString(lipgloss.NewStyle().Foreground(b.Color(current)).Bold(true).Render("◆"))
		case lowPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(colorCold).Render("▪"))
		case highPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(colorHot).Render("▪"))
		default:
			sb.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("·"))
		}
	}
	return sb.String()
}

// RenderTempValue formats a reading in kelvin with its band colour.
func RenderTempValue(kelvin float64, b Band) string {
	style := lipgloss.NewStyle().Foreground(b.Color(kelvin))
	if b.outside(kelvin) {
		style = style.Bold(true)
	}
	return style.Render(fmt.Sprintf("%10.4f K", kelvin))
}
