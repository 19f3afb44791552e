package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Console imprime el feed de eventos en vivo y los reportes en tabla.
// Implementa ports.Subscriber.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewConsole crea un notificador que escribe a stdout. Con verbose imprime
// también NewResult y los BetDecision permitidos, que hacen mucho ruido.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// Name identifica la consola entre los suscriptores de eventos.
func (c *Console) Name() string { return "console" }

// Handle imprime una línea por evento.
func (c *Console) Handle(_ context.Context, e domain.Event) error {
	line := c.format(e)
	if line == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] #%-5d %s\n", e.Time.Format("15:04:05"), e.Seq, line)
	return err
}

func (c *Console) format(e domain.Event) string {
	switch p := e.Payload.(type) {
	case domain.StatusChange:
		s := fmt.Sprintf("STATUS  %s → %s (%s)", p.Previous, p.Status, p.Mode)
		if p.Reason != "" {
			s += " reason=" + p.Reason
		}
		if p.Terminal {
			s += " [terminal]"
		}
		return s

	case domain.NewResult:
		if !c.verbose {
			return ""
		}
		o := p.Outcome
		return fmt.Sprintf("SPIN    %d → %2d %s", o.SpinNumber, o.Value, colorLabel(o.Color))

	case domain.BetDecision:
		d := p.Decision
		if !p.Allowed {
			return fmt.Sprintf("DENIED  %s $%s step=%d spin=%d reason=%s %s",
				d.Type, d.Amount.StringFixed(2), d.GaleStep, p.SpinFor, p.DenyReason, p.DenyDetail)
		}
		if !c.verbose && !p.Simulated {
			return ""
		}
		tag := "DECIDE "
		if p.Simulated {
			tag = "SHADOW "
		}
		return fmt.Sprintf("%s %s $%s step=%d spin=%d%s",
			tag, d.Type, d.Amount.StringFixed(2), d.GaleStep, p.SpinFor, keepaliveLabel(d.Keepalive))

	case domain.BetPlaced:
		b := p.Bet
		return fmt.Sprintf("PLACED  %s $%s step=%d spin=%d ref=%s%s",
			b.Type, b.Amount.StringFixed(2), b.GaleStep, b.SpinFor, b.Ref, keepaliveLabel(b.Keepalive))

	case domain.BetResolved:
		b := p.Bet
		var spin string
		if p.Outcome != nil {
			spin = fmt.Sprintf(" on %d %s", p.Outcome.Value, colorLabel(p.Outcome.Color))
		}
		s := fmt.Sprintf("%-7s %s $%s pnl=%s%s next_step=%d",
			strings.ToUpper(string(b.Status)), b.Type, b.Amount.StringFixed(2),
			signed(b.PnL().StringFixed(2)), spin, p.GaleStepAfter)
		if b.Simulated {
			s = "(shadow) " + s
		}
		if p.CycleLost {
			s += " [cycle lost]"
		}
		return s

	case domain.BalanceUpdate:
		return fmt.Sprintf("BALANCE %s (%s) session=%s",
			p.Balance.Current.StringFixed(2), signed(p.Delta.StringFixed(2)),
			signed(p.Balance.ProfitLoss().StringFixed(2)))

	case domain.ErrorEvent:
		s := fmt.Sprintf("ERROR   %s: %s", p.Kind, p.Message)
		if p.Bet != nil && p.Bet.Status == domain.BetVoid {
			s = fmt.Sprintf("VOID    %s $%s spin=%d reason=%s",
				p.Bet.Type, p.Bet.Amount.StringFixed(2), p.Bet.SpinFor, p.Bet.VoidReason)
		}
		if p.Fatal {
			s += " [fatal]"
		}
		return s
	}
	return ""
}

// PrintSnapshot imprime el estado actual del bot en pocas líneas.
func (c *Console) PrintSnapshot(s domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n── STATUS ──\n")
	fmt.Fprintf(c.out, "  Status:   %s (%s)", s.Status, s.Mode)
	if s.TestMode {
		fmt.Fprintf(c.out, " [test]")
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Session:  %s\n", s.SessionID)
	fmt.Fprintf(c.out, "  Balance:  %s (P/L %s)\n", s.Balance, signed(s.Balance.ProfitLoss().StringFixed(2)))
	fmt.Fprintf(c.out, "  Bets:     %d (W:%d L:%d)\n", s.TotalBets, s.Wins, s.Losses)
	fmt.Fprintf(c.out, "  Gale:     step %d, last spin %d\n", s.Gale.Step, s.LastSpin)
	if s.ActiveBet != nil {
		b := s.ActiveBet
		fmt.Fprintf(c.out, "  Active:   %s $%s on spin %d (%s)\n", b.Type, b.Amount.StringFixed(2), b.SpinFor, s.Phase)
	}
	if s.Reason != "" {
		fmt.Fprintf(c.out, "  Reason:   %s\n", s.Reason)
	}
}

func colorLabel(c domain.Color) string {
	switch c {
	case domain.ColorRed:
		return "R"
	case domain.ColorBlack:
		return "B"
	}
	return "G"
}

func keepaliveLabel(k bool) string {
	if k {
		return " [keepalive]"
	}
	return ""
}

// signed antepone "+" a los importes no negativos.
func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String()
}
