package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Warpcall/internal/negotiation"
)

var (
	accent = lipgloss.Color("#22d3ee") // cyan
	violet = lipgloss.Color("#7C3AED")
	green  = lipgloss.Color("#10B981")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")
	white  = lipgloss.Color("#F9FAFB")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(gray)
	warningStyle = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(gray).MarginTop(1)
	spinnerStyle = lipgloss.NewStyle().Foreground(accent)

	// BoldStyle and InfoBoxStyle frame the serve banner.
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	InfoBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(violet).
			Padding(1, 2)
)

// Roster table.
var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(accent)
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	tableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
	selectedRowStyle = tableCellStyle.Foreground(white).Background(violet).Bold(true)
)

const (
	IconPeer   = "👤"
	IconCall   = "📞"
	IconHangup = "📴"

	// IconWaiting prefixes the plain-mode "waiting for someone" spinner.
	IconWaiting = "⏳"

	iconRoom     = "🚪"
	iconConnect  = "🔌"
	iconIncoming = "📲"
	iconOK       = "✅"
	iconFail     = "❌"
	iconWarn     = "⚠️"
	iconNote     = "•"
)

// callStates maps each negotiation state to its roster label.
var callStates = map[negotiation.State]struct {
	label string
	style lipgloss.Style
}{
	negotiation.Idle:           {"idle", mutedStyle},
	negotiation.OfferSent:      {IconCall + " calling", lipgloss.NewStyle()},
	negotiation.OfferReceived:  {iconIncoming + " incoming", warningStyle},
	negotiation.AnswerSent:     {iconConnect + " connecting", lipgloss.NewStyle()},
	negotiation.AnswerReceived: {iconConnect + " connecting", lipgloss.NewStyle()},
	negotiation.Connected:      {"connected", successStyle},
	negotiation.Closed:         {IconHangup + " ended", mutedStyle},
	negotiation.Failed:         {"failed", errorStyle},
}

func stateLabel(s negotiation.State) string {
	if st, ok := callStates[s]; ok {
		return st.style.Render(st.label)
	}
	return s.String()
}

func printLine(icon string, style lipgloss.Style, msg string) {
	fmt.Printf("%s %s\n", style.Render(icon), style.Render(msg))
}

func PrintError(msg string)   { printLine(iconFail, errorStyle, msg) }
func PrintWarning(msg string) { printLine(iconWarn, warningStyle, msg) }
func PrintInfo(msg string)    { printLine(iconNote, lipgloss.NewStyle(), msg) }

func PrintSuccessf(format string, args ...any) {
	fmt.Printf("%s %s\n", successStyle.Render(iconOK), fmt.Sprintf(format, args...))
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
