// Package ui renders the kiosk's user-facing notices and the connectivity
// indicator on the console.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorGreen = "#22C55E"
	colorAmber = "#F59E0B"
	colorRed   = "#EF4444"
	colorBlue  = "#3B82F6"
	colorGray  = "#6B7280"
)

// Level is a notice severity.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Connectivity is the indicator state shown to the user.
type Connectivity int

const (
	Offline Connectivity = iota
	Connecting
	Online
	// Lost means reconnecting gave up; only a restart recovers.
	Lost
)

func (c Connectivity) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Lost:
		return "lost"
	default:
		return "offline"
	}
}

// Notifier is everything the session tells the user.
type Notifier interface {
	Notify(level Level, message string)
	SetConnectivity(c Connectivity)
	SetFaceDetected(detected bool)
	PromptRegistration()
	ShowCart(lines []string, totalQuantity int, totalAmount float64)
}

// Console writes styled notices to a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	face  bool
	conn  Connectivity
	first bool

	styles map[Level]lipgloss.Style
	dim    lipgloss.Style
	title  lipgloss.Style
}

// NewConsole renders to out.
func NewConsole(out io.Writer) *Console {
	style := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(c))
	}
	return &Console{
		out:   out,
		now:   time.Now,
		first: true,
		styles: map[Level]lipgloss.Style{
			Info:    style(colorBlue),
			Success: style(colorGreen),
			Warning: style(colorAmber),
			Error:   style(colorRed),
		},
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		title: lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

var _ Notifier = (*Console)(nil)

func (c *Console) Notify(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := c.styles[level].Render(fmt.Sprintf("%-7s", strings.ToUpper(level.String())))
	fmt.Fprintf(c.out, "%s %s %s\n", c.dim.Render(c.now().Format("15:04:05")), tag, message)
}

func (c *Console) SetConnectivity(state Connectivity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == c.conn && !c.first {
		return
	}
	c.conn, c.first = state, false

	var dot lipgloss.Style
	switch state {
	case Online:
		dot = c.styles[Success]
	case Connecting:
		dot = c.styles[Warning]
	default:
		dot = c.styles[Error]
	}
	fmt.Fprintf(c.out, "%s %s %s\n", c.dim.Render(c.now().Format("15:04:05")), dot.Render("●"), state)
}

func (c *Console) SetFaceDetected(detected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if detected == c.face {
		return
	}
	c.face = detected
	msg := "no face in view"
	if detected {
		msg = "face in view"
	}
	fmt.Fprintln(c.out, c.dim.Render(msg))
}

func (c *Console) PromptRegistration() {
	c.Notify(Info, "New customer detected. Type `register <name> <phone>` to create an account.")
}

func (c *Console) ShowCart(lines []string, totalQuantity int, totalAmount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	b.WriteString(c.title.Render("Cart"))
	b.WriteByte('\n')
	if len(lines) == 0 {
		b.WriteString(c.dim.Render("  (empty)"))
		b.WriteByte('\n')
	}
	for i, l := range lines {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, l)
	}
	fmt.Fprintf(&b, "  %d items, total %.2f\n", totalQuantity, totalAmount)
	io.WriteString(c.out, b.String())
}
