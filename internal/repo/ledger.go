package repo

import (
	"context"
	"database/sql"
	"time"

	"deliberation/internal/vector"
)

// TxLedger is the character resource ledger bound to one transaction.
type TxLedger struct {
	Repo Repo
	Tx   *sql.Tx
}

func (l TxLedger) Balance(ctx context.Context, characterID string) (vector.Resources, error) {
	c, err := l.Repo.GetCharacterTx(ctx, l.Tx, characterID)
	if err != nil {
		return vector.Resources{}, err
	}
	return c.Resources, nil
}

// Deduct subtracts amount per kind, flooring each balance at zero.
func (l TxLedger) Deduct(ctx context.Context, characterID string, amount vector.Resources) error {
	bal, err := l.Balance(ctx, characterID)
	if err != nil {
		return err
	}
	return l.Repo.SetCharacterResources(ctx, l.Tx, characterID, bal.DeductFloor(amount))
}

// TxBoard is the shared metric board bound to one transaction.
type TxBoard struct {
	Repo Repo
	Tx   *sql.Tx
	Now  func() time.Time
}

func (b TxBoard) Values(ctx context.Context) (map[vector.Metric]int, error) {
	ms, err := b.Repo.ListMetricsTx(ctx, b.Tx)
	if err != nil {
		return nil, err
	}
	out := make(map[vector.Metric]int, len(ms))
	for _, m := range ms {
		out[vector.Metric(m.Kind)] = m.Value
	}
	return out, nil
}

// Apply adds every delta in outcome to the board.
func (b TxBoard) Apply(ctx context.Context, outcome vector.Outcome) error {
	now := b.Now
	if now == nil {
		now = time.Now
	}
	at := now().UTC().Format(time.RFC3339)
	for _, m := range outcome.Metrics() {
		if err := b.Repo.AddMetric(ctx, b.Tx, m, outcome[m], at); err != nil {
			return err
		}
	}
	return nil
}
