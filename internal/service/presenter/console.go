package presenter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"PortDelta/internal/domain/models"
	dsvc "PortDelta/internal/domain/service"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ConsolePresenter prints one line per round: blue for a gain, red for a loss.
type ConsolePresenter struct {
	mu    sync.Mutex
	w     io.Writer
	f     *Formatter
	color bool
	gain  lipgloss.Style
	loss  lipgloss.Style
}

var _ dsvc.Presenter = (*ConsolePresenter)(nil)

// NewConsolePresenter writes to w. With color set, ANSI colors are emitted
// even when w is not a terminal.
func NewConsolePresenter(w io.Writer, f *Formatter, color bool) *ConsolePresenter {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI)
	}
	return &ConsolePresenter{
		w:     w,
		f:     f,
		color: color,
		gain:  r.NewStyle().Foreground(lipgloss.Color("4")),
		loss:  r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (p *ConsolePresenter) Present(_ context.Context, r *models.ValuationResult) error {
	line := p.paint(p.f.Format(r.Delta), TreatmentOf(r.Delta))
	if failed := r.FailedSymbols(); len(failed) > 0 {
		line += " (unpriced: " + strings.Join(failed, ", ") + ")"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *ConsolePresenter) Fail(_ context.Context, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, p.paint("valuation unavailable: "+err.Error(), TreatmentLoss))
}

func (p *ConsolePresenter) paint(s string, t Treatment) string {
	if !p.color {
		return s
	}
	if t == TreatmentLoss {
		return p.loss.Render(s)
	}
	return p.gain.Render(s)
}
