package ledger

import (
	"sort"

	"github.com/freelilwilly/polymarket-tracker/internal/model"
)

// Snapshot materializes the current summary, positions and accounts. Rows
// are sorted so the same ledger state always yields identical record sets;
// Audit is left empty for the caller to fill with unpersisted rows.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.totals()
	snap := model.Snapshot{
		Summary: model.Summary{
			RunID:            e.runID,
			RunStart:         e.runStart,
			LastUpdate:       e.lastUpdate,
			StartingBankroll: dec(e.params.StartingBankroll),
			RealizedPnL:      dec(t.RealizedPnL),
			RealizedGains:    dec(t.RealizedGains),
			RealizedLosses:   dec(t.RealizedLosses),
			RealizedROIPct:   dec(t.RealizedROIPct),
			UnsoldValue:      dec(t.UnsoldValue),
			TotalEquity:      dec(t.TotalEquity),
			OpenPositions:    len(e.positions),
			TrackedAccounts:  len(e.accounts),
			ProcessedTrades:  t.ProcessedTrades,
		},
		Positions: make([]model.Position, 0, len(e.positions)),
		Accounts:  make([]model.Account, 0, len(e.accounts)),
	}

	keys := make([]string, 0, len(e.positions))
	for k := range e.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := e.positions[k]
		value := p.shares * p.lastPrice
		basis := p.shares * p.avgCost
		snap.Positions = append(snap.Positions, model.Position{
			TraderID:      p.traderID,
			TraderName:    p.traderName,
			Market:        p.inst.Market,
			Outcome:       p.inst.Outcome,
			InstrumentKey: p.inst.Key,
			Shares:        dec(p.shares),
			AvgCost:       dec(p.avgCost),
			LastPrice:     dec(p.lastPrice),
			CurrentValue:  dec(value),
			CostBasis:     dec(basis),
			UnrealizedPnL: dec(value - basis),
		})
	}

	traders := make([]string, 0, len(e.accounts))
	for id := range e.accounts {
		traders = append(traders, id)
	}
	sort.Strings(traders)
	for _, id := range traders {
		a := e.accounts[id]
		snap.Accounts = append(snap.Accounts, model.Account{
			TraderID:       id,
			TraderName:     a.name,
			CopiedTrades:   a.copiedTrades,
			CopiedNotional: dec(a.copiedNotional),
			RealizedPnL:    dec(a.realized),
			RealizedGains:  dec(a.gains),
			RealizedLosses: dec(a.losses),
			OpenNotional:   dec(e.accountOpen[id]),
		})
	}
	return snap
}
