package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/livermore/margin"
	"github.com/rustyeddy/livermore/position"
	"github.com/rustyeddy/livermore/sim"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func money(cur string, d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + cur + d.Neg().StringFixed(2)
	}
	return cur + d.StringFixed(2)
}

// ratioPct renders a ratio such as 1.25 as "125.00%".
func ratioPct(d decimal.Decimal) string {
	return d.Mul(hundred).StringFixed(2) + "%"
}

func pct(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func marginLine(level decimal.Decimal, t position.Terms) string {
	return fmt.Sprintf("%s (maintenance %s, liquidation %s)",
		ratioPct(level), ratioPct(t.MaintenanceMarginRatio), ratioPct(t.LiquidationMarginRatio))
}

func triggerLines(w io.Writer, cur string, p *position.Position, rep *sim.Report) {
	tr := margin.TriggersFor(p, rep.Metrics)
	fmt.Fprintf(w, "  Margin call above: %s\n", money(cur, tr.MarginCall))
	fmt.Fprintf(w, "  Liquidation above: %s\n", money(cur, tr.Liquidation))
}

func printOpen(w io.Writer, cur string, rep *sim.Report) {
	p, m := rep.Position, rep.Metrics
	fmt.Fprintf(w, "✓ Opened short: %d %s @ %s\n", p.Shares, p.Symbol, money(cur, p.EntryPrice))
	fmt.Fprintf(w, "  ID:              %s\n", p.ID)
	fmt.Fprintf(w, "  Position value:  %s\n", money(cur, m.PositionValueEntry))
	fmt.Fprintf(w, "  Initial capital: %s\n", money(cur, p.InitialCapital))
	fmt.Fprintf(w, "  Commission:      %s\n", money(cur, m.OpenCommission))
	fmt.Fprintf(w, "  Cash after fee:  %s\n", money(cur, p.CashAfterOpenCommission))
	fmt.Fprintf(w, "  Margin level:    %s\n", marginLine(m.MarginLevel, p.Terms()))
	triggerLines(w, cur, p, rep)
}

func printCheck(w io.Writer, cur string, rep *sim.Report) {
	p, m := rep.Position, rep.Metrics
	fmt.Fprintf(w, "%s @ %s  [%s]\n", p.Symbol, money(cur, m.Price), rep.Health)
	fmt.Fprintf(w, "  %s\n", rep.Message)
	fmt.Fprintf(w, "  \"%s\"\n\n", margin.TraderQuote(m.NetPnl, m.PositionValueEntry))
	printMetrics(w, cur, p, rep)

	if rep.Liquidated() {
		fmt.Fprintf(w, "\n✗ Position LIQUIDATED at %s\n", money(cur, m.Price))
		printSettlement(w, cur, rep)
	}
}

func printMetrics(w io.Writer, cur string, p *position.Position, rep *sim.Report) {
	m := rep.Metrics
	fmt.Fprintf(w, "  Unrealized P&L:  %s (%s)\n", money(cur, m.UnrealizedPnl), pct(m.PnlPct))
	fmt.Fprintf(w, "  Days elapsed:    %s\n", m.DaysElapsed.StringFixed(2))
	fmt.Fprintf(w, "  Borrow fees:     %s\n", money(cur, m.BorrowFees))
	fmt.Fprintf(w, "  Total fees:      %s\n", money(cur, m.TotalFees))
	fmt.Fprintf(w, "  Net P&L:         %s\n", money(cur, m.NetPnl))
	fmt.Fprintf(w, "  Equity:          %s\n", money(cur, m.Equity))
	fmt.Fprintf(w, "  Margin level:    %s\n", marginLine(m.MarginLevel, p.Terms()))
	fmt.Fprintf(w, "  Margin calls:    %d\n", p.MarginCalls)
	if !rep.Liquidated() {
		triggerLines(w, cur, p, rep)
	}
}

func printClose(w io.Writer, cur string, rep *sim.Report) {
	p, m := rep.Position, rep.Metrics
	fmt.Fprintf(w, "✓ Closed short: %d %s @ %s\n", p.Shares, p.Symbol, money(cur, m.Price))
	fmt.Fprintf(w, "  Entry:           %s on %s\n", money(cur, p.EntryPrice), ts(p.EntryTimestamp))
	fmt.Fprintf(w, "  Unrealized P&L:  %s\n", money(cur, m.UnrealizedPnl))
	fmt.Fprintf(w, "  Borrow fees:     %s (%s days)\n", money(cur, m.BorrowFees), m.DaysElapsed.StringFixed(2))
	printSettlement(w, cur, rep)
}

func printSettlement(w io.Writer, cur string, rep *sim.Report) {
	s := rep.Settlement
	if s == nil {
		return
	}
	fmt.Fprintf(w, "  Close commission: %s\n", money(cur, s.CloseCommission))
	fmt.Fprintf(w, "  Final equity:     %s\n", money(cur, s.FinalEquity))
	fmt.Fprintf(w, "  Realized P&L:     %s\n", money(cur, s.RealizedPnl))
	fmt.Fprintf(w, "  Total return:     %s\n", pct(s.TotalReturnPct))
}

func printPosition(w io.Writer, cur string, p *position.Position) {
	fmt.Fprintf(w, "%s  %d %s short @ %s since %s\n",
		p.Status, p.Shares, p.Symbol, money(cur, p.EntryPrice), ts(p.EntryTimestamp))
	fmt.Fprintf(w, "  ID:              %s\n", p.ID)
	fmt.Fprintf(w, "  Initial capital: %s\n", money(cur, p.InitialCapital))
	if last, ok := p.LastSnapshot(); ok {
		fmt.Fprintf(w, "  Last check:      %s at %s\n", money(cur, last.Price), ts(last.Timestamp))
		fmt.Fprintf(w, "  Net P&L:         %s\n", money(cur, last.NetPnl))
		fmt.Fprintf(w, "  Margin level:    %s\n", marginLine(last.MarginLevel, p.Terms()))
	}
	fmt.Fprintf(w, "  Snapshots:       %d\n", len(p.History))
	fmt.Fprintf(w, "  Margin calls:    %d\n", p.MarginCalls)
}

func printHistory(w io.Writer, cur string, ps []*position.Position) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "No closed positions.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLOSED\tSTATUS\tSYMBOL\tSHARES\tENTRY\tEXIT\tFINAL EQUITY\tRETURN\tID")
	for _, p := range ps {
		cr := p.CloseRecord
		if cr == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			ts(cr.CloseTimestamp),
			p.Status,
			p.Symbol,
			p.Shares,
			money(cur, p.EntryPrice),
			money(cur, cr.ClosePrice),
			money(cur, cr.FinalEquity),
			pct(cr.TotalReturnPct),
			p.ID)
	}
	_ = tw.Flush()
}
