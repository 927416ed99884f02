package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/tesso57/feedwatch/internal/application/usecase"
)

const defaultWidth = 100

// Console writes notifications to a terminal or any writer.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	width     int
	direct    lipgloss.Style
	broadcast lipgloss.Style
	body      lipgloss.Style
}

// NewConsole creates a Console. Lines wider than width cells are truncated;
// a non-positive width uses the default.
func NewConsole(out io.Writer, width int) *Console {
	if width <= 0 {
		width = defaultWidth
	}
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:       out,
		width:     width,
		direct:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		broadcast: r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		body:      r.NewStyle().PaddingLeft(2),
	}
}

// Send prints text under a header naming the recipient.
func (c *Console) Send(ctx context.Context, recipient, text string, kind usecase.MessageKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := c.direct.Render(fmt.Sprintf("[%s → %s]", kind, recipient))
	if kind == usecase.Broadcast {
		header = c.broadcast.Render(fmt.Sprintf("[%s → %s]", kind, recipient))
	}

	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, c.width, "…")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s\n%s\n", header, c.body.Render(strings.Join(lines, "\n")))
	return err
}
