package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// printer renders relayctl's human-facing output: aligned tables for
// `retrieve`, summary lines for `lease`/`ack`/`nack`/`send`. It
// degrades to plain, uncolored text when stdout isn't a terminal so
// piping output to a file or another program doesn't embed escape
// codes.
type printer struct {
	w       io.Writer
	colored bool
}

func newPrinter() *printer {
	return &printer{
		w:       os.Stdout,
		colored: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	stateOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stateWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	stateErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.colored {
		return s
	}
	return style.Render(s)
}

func (p *printer) messageTable(envelopes []messageEnvelope) {
	if len(envelopes) == 0 {
		fmt.Fprintln(p.w, "no messages")
		return
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.render(headerStyle, "DELIVERY_ID\tCHAT_BOT\tAUTHOR\tCHANNEL\tCONTENT"))
	for _, e := range envelopes {
		content := e.ChatMessage.Content
		if len(content) > 60 {
			content = content[:57] + "..."
		}
		content = strings.ReplaceAll(content, "\n", " ")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.render(idStyle, e.DeliveryID),
			e.ChatBotID,
			e.ChatMessage.Source.AuthorName,
			e.ChatMessage.Source.ChannelID,
			content,
		)
	}
	tw.Flush()
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(stateOK, "ok")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(stateWarn, "warn")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) fail(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(stateErr, "error")+" "+fmt.Sprintf(format, args...))
}
