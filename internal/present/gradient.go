package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	gradientStart = "#F967DC"
	gradientEnd   = "#6B50FF"
)

// GradientRamp blends n colors from pink to purple.
func GradientRamp(n int) []lipgloss.Color {
	if n <= 0 {
		return nil
	}
	start, _ := colorful.Hex(gradientStart)
	end, _ := colorful.Hex(gradientEnd)
	out := make([]lipgloss.Color, n)
	for i := range n {
		step := start.BlendLuv(end, float64(i)/float64(n))
		out[i] = lipgloss.Color(step.Hex())
	}
	return out
}

// GradientText colors str rune by rune. Strings shorter than three runes
// are returned unchanged.
func GradientText(base lipgloss.Style, str string) string {
	runes := []rune(str)
	if len(runes) < 3 {
		return str
	}
	var b strings.Builder
	for i, c := range GradientRamp(len(runes)) {
		b.WriteString(base.Foreground(c).Render(string(runes[i])))
	}
	return b.String()
}
