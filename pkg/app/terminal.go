package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/muesli/termenv"
)

var (
	RedColor    = lipgloss.Color("#F87171")
	BlueColor   = lipgloss.Color("#60A5FA")
	YellowColor = lipgloss.Color("#FBBF24")
	MutedColor  = lipgloss.Color("#9CA3AF")

	Sender  = lipgloss.NewStyle().Foreground(RedColor).Bold(true)
	Text    = lipgloss.NewStyle().Foreground(BlueColor)
	Warning = lipgloss.NewStyle().Foreground(YellowColor)
	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
)

var _ Display = (*Terminal)(nil)

// Terminal writes coloured lines to a terminal. It is safe for concurrent
// use.
type Terminal struct {
	mtx    sync.Mutex
	out    io.Writer
	output *termenv.Output
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{
		out:    w,
		output: termenv.NewOutput(w),
	}
}

func (t *Terminal) Message(from peer.ID, text string) {
	t.println(Sender.Render(ShortID(from)+":") + " " + Text.Render(text))
}

func (t *Terminal) Echo(text string) {
	t.println(Sender.Render("me:") + " " + Text.Render(text))
}

func (t *Terminal) Info(msg string) {
	t.println(Muted.Render(msg))
}

func (t *Terminal) Warn(msg string) {
	t.println(Warning.Render(msg))
}

func (t *Terminal) Clear() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.output.ClearScreen()
}

func (t *Terminal) println(line string) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	fmt.Fprintln(t.out, line)
}

// ShortID abbreviates a peer id for display.
func ShortID(id peer.ID) string {
	s := id.String()
	if len(s) <= 12 {
		return s
	}
	return s[len(s)-12:]
}
