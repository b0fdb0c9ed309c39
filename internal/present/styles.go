package present

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles are the lipgloss styles shared by the CLI and the chat UI.
type Styles struct {
	AppName          lipgloss.Style
	CliArgs          lipgloss.Style
	Comment          lipgloss.Style
	ConversationList lipgloss.Style
	ErrorHeader      lipgloss.Style
	ErrorDetails     lipgloss.Style
	ErrPadding       lipgloss.Style
	Flag             lipgloss.Style
	FlagComma        lipgloss.Style
	FlagDesc         lipgloss.Style
	InlineCode       lipgloss.Style
	Link             lipgloss.Style
	Pipe             lipgloss.Style
	Quote            lipgloss.Style
	SHA              lipgloss.Style
	Timeago          lipgloss.Style

	Panel   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Prompt  lipgloss.Style
	User    lipgloss.Style
	Notice  lipgloss.Style
	Warning lipgloss.Style
	Usage   lipgloss.Style
	Success lipgloss.Style
}

// MakeStyles returns the styles bound to r.
func MakeStyles(r *lipgloss.Renderer) Styles {
	comment := lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#757575"}
	purple := lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	pink := lipgloss.Color("#F967DC")
	red := lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	green := lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02BF87"}
	yellow := lipgloss.AdaptiveColor{Light: "#C38B00", Dark: "#ECD27C"}

	return Styles{
		AppName:          r.NewStyle().Bold(true),
		CliArgs:          r.NewStyle().Foreground(lipgloss.Color("#585858")),
		Comment:          r.NewStyle().Foreground(comment),
		ConversationList: r.NewStyle().Padding(0, 1),
		ErrorHeader:      r.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Bold(true).Padding(0, 1).SetString("ERROR"),
		ErrorDetails:     r.NewStyle().Foreground(comment),
		ErrPadding:       r.NewStyle().Padding(0, 1),
		Flag:             r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}).Bold(true),
		FlagComma:        r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5DD6C0", Dark: "#427C72"}).SetString(","),
		FlagDesc:         r.NewStyle().Foreground(comment),
		InlineCode:       r.NewStyle().Foreground(red).Background(lipgloss.AdaptiveColor{Light: "#EEEEEE", Dark: "#1A1A1A"}).Padding(0, 1),
		Link:             r.NewStyle().Foreground(lipgloss.Color("#00AF87")).Underline(true),
		Pipe:             r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8470FF", Dark: "#745CFF"}),
		Quote:            r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF71D0", Dark: "#FF78D2"}),
		SHA:              r.NewStyle().Foreground(green),
		Timeago:          r.NewStyle().Foreground(comment),

		Panel:   r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(purple).Padding(0, 1),
		Label:   r.NewStyle().Foreground(purple).Bold(true),
		Value:   r.NewStyle(),
		Prompt:  r.NewStyle().Foreground(pink).Bold(true),
		User:    r.NewStyle().Foreground(purple),
		Notice:  r.NewStyle().Foreground(yellow),
		Warning: r.NewStyle().Foreground(red),
		Usage:   r.NewStyle().Foreground(comment).Italic(true),
		Success: r.NewStyle().Foreground(green).Bold(true),
	}
}
