package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deliberation/internal/events"
	"deliberation/internal/repo"
	"deliberation/internal/snapshot"
	"deliberation/internal/vector"
)

// Capture reads balances, completion flags and metrics as one consistent
// state.
func (e Engine) Capture(ctx context.Context, simulation string) (snapshot.State, error) {
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return snapshot.State{}, err
	}
	defer tx.Rollback()

	st := snapshot.State{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			Simulation: simulation,
			TakenAt:    e.now().UTC().Format(time.RFC3339),
		},
		Characters: map[string]vector.Resources{},
		Projects:   map[string]snapshot.ProjectState{},
		Metrics:    map[string]int{},
	}
	chars, err := e.Repo.ListCharactersTx(ctx, tx)
	if err != nil {
		return st, err
	}
	for _, c := range chars {
		st.Characters[c.ID] = c.Resources
	}
	projects, err := e.Repo.ListProjectsTx(ctx, tx, repo.StatusAll)
	if err != nil {
		return st, err
	}
	for _, p := range projects {
		st.Projects[p.ID] = snapshot.ProjectState{Completed: p.Completed, CompletedAt: p.CompletedAt}
	}
	metrics, err := e.Repo.ListMetricsTx(ctx, tx)
	if err != nil {
		return st, err
	}
	for _, m := range metrics {
		st.Metrics[m.Kind] = m.Value
	}
	return st, nil
}

// Restore puts balances, completion flags and metrics back to st. Every
// character and project in st must exist. Metrics absent from st and
// settlement history of projects st marks open are removed.
func (e Engine) Restore(ctx context.Context, st snapshot.State, actorID string) error {
	actor := actorOrDefault(actorID)
	unlock := e.lock()
	defer unlock()

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, res := range st.Characters {
		if k, neg := res.Negative(); neg {
			return fmt.Errorf("%w: snapshot gives character %s negative %s", ErrInvalidContribution, id, k)
		}
		if err := e.Repo.SetCharacterResources(ctx, tx, id, res); err != nil {
			return err
		}
	}
	completed := map[string]bool{}
	for id, ps := range st.Projects {
		if err := e.Repo.RestoreProjectState(ctx, tx, id, ps.Completed, ps.CompletedAt); err != nil {
			return err
		}
		if ps.Completed {
			completed[id] = true
		}
	}
	if err := e.Repo.DeleteSettlementsExcept(ctx, tx, completed); err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	keep := make([]vector.Metric, 0, len(st.Metrics))
	for name, v := range st.Metrics {
		if err := e.Repo.SetMetric(ctx, tx, vector.Metric(name), v, now); err != nil {
			return err
		}
		keep = append(keep, vector.Metric(name))
	}
	if err := e.Repo.DeleteMetricsExcept(ctx, tx, keep); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeSnapshotRestored, "simulation", st.Header.Simulation, actor, events.EventPayload{
		"taken_at":   st.Header.TakenAt,
		"characters": len(st.Characters),
		"projects":   len(st.Projects),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("snapshot restored", zap.String("taken_at", st.Header.TakenAt))
	return nil
}
