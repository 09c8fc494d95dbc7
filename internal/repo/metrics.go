package repo

import (
	"context"
	"database/sql"
	"fmt"

	"deliberation/internal/domain"
	"deliberation/internal/vector"
)

func (r Repo) ListMetrics(ctx context.Context) ([]domain.Metric, error) {
	return r.ListMetricsTx(ctx, nil)
}

// ListMetricsTx returns the board in display order.
func (r Repo) ListMetricsTx(ctx context.Context, tx *sql.Tx) ([]domain.Metric, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT kind,value,updated_at FROM metrics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byKind := map[vector.Metric]domain.Metric{}
	var kinds []vector.Metric
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.Kind, &m.Value, &m.UpdatedAt); err != nil {
			return nil, err
		}
		byKind[vector.Metric(m.Kind)] = m
		kinds = append(kinds, vector.Metric(m.Kind))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	vector.SortMetrics(kinds)
	res := make([]domain.Metric, 0, len(kinds))
	for _, k := range kinds {
		res = append(res, byKind[k])
	}
	return res, nil
}

// SetMetric stores an absolute value, creating the metric if needed.
func (r Repo) SetMetric(ctx context.Context, tx *sql.Tx, kind vector.Metric, value int, at string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO metrics(kind,value,updated_at) VALUES (?,?,?)
ON CONFLICT(kind) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, string(kind), value, at)
	if err != nil {
		return fmt.Errorf("set metric %s: %w", kind, err)
	}
	return nil
}

// AddMetric adds delta to a metric; a metric seen for the first time starts
// at zero.
func (r Repo) AddMetric(ctx context.Context, tx *sql.Tx, kind vector.Metric, delta int, at string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO metrics(kind,value,updated_at) VALUES (?,?,?)
ON CONFLICT(kind) DO UPDATE SET value=metrics.value+excluded.value, updated_at=excluded.updated_at`, string(kind), delta, at)
	if err != nil {
		return fmt.Errorf("add metric %s: %w", kind, err)
	}
	return nil
}

// DeleteMetricsExcept drops metrics not named in keep. Snapshot restore uses
// it to remove metrics first created after the snapshot was taken.
func (r Repo) DeleteMetricsExcept(ctx context.Context, tx *sql.Tx, keep []vector.Metric) error {
	existing, err := r.ListMetricsTx(ctx, tx)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		set[string(k)] = struct{}{}
	}
	for _, m := range existing {
		if _, ok := set[m.Kind]; ok {
			continue
		}
		if _, err := r.on(tx).ExecContext(ctx, `DELETE FROM metrics WHERE kind=?`, m.Kind); err != nil {
			return fmt.Errorf("delete metric %s: %w", m.Kind, err)
		}
	}
	return nil
}
