package ui

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/longkey1/newschat/internal/newschat/session"
)

type palette struct {
	background lipgloss.Color
	text       lipgloss.Color
	muted      lipgloss.Color
	accent     lipgloss.Color
	user       lipgloss.Color
	assistant  lipgloss.Color
	system     lipgloss.Color
	warning    lipgloss.Color
	danger     lipgloss.Color
	success    lipgloss.Color
}

var palettes = map[session.Theme]palette{
	session.ThemeLight: {
		background: lipgloss.Color("#F5F5F5"),
		text:       lipgloss.Color("#1F2328"),
		muted:      lipgloss.Color("#6E7781"),
		accent:     lipgloss.Color("#0969DA"),
		user:       lipgloss.Color("#0969DA"),
		assistant:  lipgloss.Color("#8250DF"),
		system:     lipgloss.Color("#9A6700"),
		warning:    lipgloss.Color("#9A6700"),
		danger:     lipgloss.Color("#CF222E"),
		success:    lipgloss.Color("#1A7F37"),
	},
	session.ThemeDark: {
		background: lipgloss.Color("#0D1117"),
		text:       lipgloss.Color("#E6EDF3"),
		muted:      lipgloss.Color("#8B949E"),
		accent:     lipgloss.Color("#58A6FF"),
		user:       lipgloss.Color("#58A6FF"),
		assistant:  lipgloss.Color("#D2A8FF"),
		system:     lipgloss.Color("#E3B341"),
		warning:    lipgloss.Color("#E3B341"),
		danger:     lipgloss.Color("#F85149"),
		success:    lipgloss.Color("#3FB950"),
	},
}

type themeStyles struct {
	header      lipgloss.Style
	title       lipgloss.Style
	muted       lipgloss.Style
	connected   lipgloss.Style
	connecting  lipgloss.Style
	offline     lipgloss.Style
	userLabel   lipgloss.Style
	agentLabel  lipgloss.Style
	systemLabel lipgloss.Style
	userBody    lipgloss.Style
	agentBody   lipgloss.Style
	systemBody  lipgloss.Style
	suggestion  lipgloss.Style
	typing      lipgloss.Style
	notice      lipgloss.Style
	prompt      lipgloss.Style
	help        lipgloss.Style
	glamour     string
}

func buildThemeStyles(t session.Theme) themeStyles {
	p, ok := palettes[t]
	if !ok {
		p = palettes[session.ThemeLight]
		t = session.ThemeLight
	}

	body := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().
			Foreground(p.text).
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(c).
			PaddingLeft(1)
	}

	return themeStyles{
		header: lipgloss.NewStyle().
			Foreground(p.text).
			Background(p.background).
			Padding(0, 1),
		title:       lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		muted:       lipgloss.NewStyle().Foreground(p.muted),
		connected:   lipgloss.NewStyle().Foreground(p.success),
		connecting:  lipgloss.NewStyle().Foreground(p.warning),
		offline:     lipgloss.NewStyle().Foreground(p.danger),
		userLabel:   lipgloss.NewStyle().Foreground(p.user).Bold(true),
		agentLabel:  lipgloss.NewStyle().Foreground(p.assistant).Bold(true),
		systemLabel: lipgloss.NewStyle().Foreground(p.system).Bold(true),
		userBody:    body(p.user),
		agentBody:   body(p.assistant),
		systemBody:  body(p.system),
		suggestion:  lipgloss.NewStyle().Foreground(p.accent),
		typing:      lipgloss.NewStyle().Foreground(p.assistant).Italic(true),
		notice:      lipgloss.NewStyle().Foreground(p.danger),
		prompt:      lipgloss.NewStyle().Foreground(p.accent),
		help:        lipgloss.NewStyle().Foreground(p.muted),
		glamour:     string(t),
	}
}

// newMarkdownRenderer returns nil when glamour cannot be initialised; callers
// then print the raw text.
func newMarkdownRenderer(styles themeStyles, width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.glamour),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}
