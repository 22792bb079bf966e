package sim

import (
	"fmt"

	"github.com/rustyeddy/livermore/journal"
	"github.com/rustyeddy/livermore/margin"
	"github.com/rustyeddy/livermore/position"
)

// TradeRecord derives the journal entry for a finalized position by marking
// it to its close price at its close time.
func TradeRecord(p *position.Position) (journal.TradeRecord, error) {
	if p == nil || !p.Status.Final() || p.CloseRecord == nil {
		return journal.TradeRecord{}, fmt.Errorf("trade record: position is not finalized")
	}
	cr := p.CloseRecord

	m, err := margin.Compute(p, cr.ClosePrice, cr.CloseTimestamp)
	if err != nil {
		return journal.TradeRecord{}, fmt.Errorf("trade record %s: %w", p.ID, err)
	}

	reason := journal.ReasonClose
	if p.Status == position.StatusLiquidated {
		reason = journal.ReasonLiquidation
	}

	return journal.TradeRecord{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Shares:     p.Shares,
		EntryPrice: p.EntryPrice,
		ExitPrice:  cr.ClosePrice,
		OpenTime:   p.EntryTimestamp,
		CloseTime:  cr.CloseTimestamp,
		Commission: m.OpenCommission.Add(cr.CloseCommission),
		BorrowFees: m.BorrowFees,
		RealizedPL: cr.FinalEquity.Sub(p.InitialCapital),
		ReturnPct:  cr.TotalReturnPct,
		Reason:     reason,
	}, nil
}

// TradeRecords converts an archive listing in order.
func TradeRecords(ps []*position.Position) ([]journal.TradeRecord, error) {
	out := make([]journal.TradeRecord, 0, len(ps))
	for _, p := range ps {
		rec, err := TradeRecord(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
