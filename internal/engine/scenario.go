package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deliberation/internal/config"
	"deliberation/internal/domain"
	"deliberation/internal/events"
	"deliberation/internal/vector"
)

// SeedScenario inserts the characters, projects and metrics of cfg in one
// transaction. Seeds without an id get a stable one derived from their name.
func (e Engine) SeedScenario(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	actor := actorOrDefault(actorID)
	unlock := e.lock()
	defer unlock()

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	for _, cs := range cfg.Characters {
		c := domain.Character{
			ID:                seedID("character", cs.ID, cs.Name),
			Name:              cs.Name,
			Interests:         cs.Interests,
			UtilityCriteria:   cs.UtilityCriteria,
			Reading:           cs.Reading,
			StartingResources: cs.StartingResources,
			Resources:         vector.ParseResources(cs.StartingResources),
			CreatedAt:         now,
		}
		if err := e.Repo.InsertCharacter(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, ps := range cfg.Projects {
		p := domain.Project{
			ID:                seedID("project", ps.ID, ps.Name),
			Name:              ps.Name,
			Description:       ps.Description,
			RequiredResources: ps.RequiredResources,
			Outcomes:          ps.Outcomes,
			CreatedAt:         now,
		}
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
	}
	metrics := make([]vector.Metric, 0, len(cfg.Metrics))
	for name := range cfg.Metrics {
		metrics = append(metrics, vector.Metric(name))
	}
	vector.SortMetrics(metrics)
	for _, m := range metrics {
		if err := e.Repo.SetMetric(ctx, tx, m, cfg.Metrics[string(m)], now); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeScenarioSeeded, "simulation", cfg.Simulation.Name, actor, events.EventPayload{
		"characters": len(cfg.Characters),
		"projects":   len(cfg.Projects),
		"metrics":    len(cfg.Metrics),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenario: %w", err)
	}
	e.log().Info("scenario seeded",
		zap.String("simulation", cfg.Simulation.Name),
		zap.Int("characters", len(cfg.Characters)),
		zap.Int("projects", len(cfg.Projects)))
	return nil
}

func seedID(kind, id, name string) string {
	if id != "" {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+"|"+name)).String()
}
