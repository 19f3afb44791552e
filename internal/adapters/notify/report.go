package notify

import (
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// ReportInput agrupa los datos necesarios para imprimir el reporte offline.
type ReportInput struct {
	Session domain.Session
	Balance domain.Balance
	Report  domain.Report
	Recent  []domain.Bet // las más recientes primero
}

// PrintReport imprime el resumen de la sesión, las tablas diaria, por gale y por
// estrategia, y las últimas apuestas.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                        GALEBOT REPORT                        ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	mode := "real"
	if in.Session.TestMode {
		mode = "test"
	}
	fmt.Fprintf(c.out, "  Session:  %s (%s, started %s ago)\n", in.Session.ID, mode, since(in.Session.StartedAt))
	fmt.Fprintf(c.out, "  Balance:  %s\n", in.Balance)
	fmt.Fprintf(c.out, "  P/L:      %s\n", signed(in.Balance.ProfitLoss().StringFixed(2)))

	fmt.Fprintf(c.out, "\n── DAILY ──\n")
	if len(in.Report.Daily) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Date", "Spins", "Bets", "Wins", "Losses", "Voids", "P/L")
		for _, d := range in.Report.Daily {
			table.Append(
				d.Date,
				fmt.Sprintf("%d", d.Spins),
				fmt.Sprintf("%d", d.Bets),
				fmt.Sprintf("%d", d.Wins),
				fmt.Sprintf("%d", d.Losses),
				fmt.Sprintf("%d", d.Voids),
				signed(d.ProfitLoss.StringFixed(2)),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── BY GALE STEP ──\n")
	if len(in.Report.Gale) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Step", "Bets", "Wins", "Losses", "P/L")
		for _, g := range in.Report.Gale {
			table.Append(
				fmt.Sprintf("%d", g.Step),
				fmt.Sprintf("%d", g.Bets),
				fmt.Sprintf("%d", g.Wins),
				fmt.Sprintf("%d", g.Losses),
				signed(g.ProfitLoss.StringFixed(2)),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── BY STRATEGY ──\n")
	if len(in.Report.Strategy) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Strategy", "Bets", "Wins", "Losses", "Win%", "Cycles lost", "P/L")
		for _, s := range in.Report.Strategy {
			table.Append(
				s.Strategy,
				fmt.Sprintf("%d", s.Bets),
				fmt.Sprintf("%d", s.Wins),
				fmt.Sprintf("%d", s.Losses),
				fmt.Sprintf("%.1f", s.WinRate()*100),
				fmt.Sprintf("%d", s.CyclesLost),
				signed(s.ProfitLoss.StringFixed(2)),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT BETS (%d) ──\n", len(in.Recent))
	if len(in.Recent) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Spin", "Type", "Amount", "Step", "Status", "P/L", "Note")
		for _, b := range in.Recent {
			note := b.VoidReason
			if b.CycleLost {
				note = "cycle lost"
			}
			if b.Keepalive {
				note = "keepalive"
			}
			table.Append(
				fmt.Sprintf("%d", b.SpinFor),
				string(b.Type),
				b.Amount.StringFixed(2),
				fmt.Sprintf("%d", b.GaleStep),
				string(b.Status),
				signed(b.PnL().StringFixed(2)),
				note,
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out)
}
