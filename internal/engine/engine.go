package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deliberation/internal/domain"
	"deliberation/internal/events"
	"deliberation/internal/logging"
	"deliberation/internal/repo"
	"deliberation/internal/vector"
)

var (
	ErrProjectCompleted    = errors.New("project already completed")
	ErrInvalidContribution = errors.New("invalid contribution")
	ErrNoContributions     = errors.New("no contributions")
)

// DefaultActor is recorded on events when the caller gives no actor.
const DefaultActor = "system"

// Notifier is told about every project a settlement completes. Calls happen
// after commit and must not block.
type Notifier interface {
	ProjectCompleted(ctx context.Context, projectID string)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify Notifier
	Logger *zap.Logger
	Now    func() time.Time

	mu *sync.Mutex
}

func New(db *sql.DB, logger *zap.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Logger: logging.OrNop(logger),
		Now:    time.Now,
		mu:     &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Logger)
}

func (e Engine) lock() func() {
	if e.mu == nil {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

func actorOrDefault(actorID string) string {
	if actorID == "" {
		return DefaultActor
	}
	return actorID
}

type SettleRequest struct {
	ProjectID     string
	ActorID       string
	Contributions Contributions
}

type SettlementResult struct {
	Verdict    Verdict            `json:"verdict"`
	Message    string             `json:"message"`
	Project    domain.Project     `json:"project"`
	Settlement *domain.Settlement `json:"settlement,omitempty"`
}

// Settle runs one settlement attempt for a project. A rejected verdict is a
// normal result with no state change; errors mean nothing was applied.
func (e Engine) Settle(ctx context.Context, req SettleRequest) (SettlementResult, error) {
	if len(req.Contributions) == 0 {
		return SettlementResult{}, ErrNoContributions
	}
	for _, id := range req.Contributions.IDs() {
		if k, neg := req.Contributions[id].Negative(); neg {
			return SettlementResult{}, fmt.Errorf("%w: character %s contributes negative %s", ErrInvalidContribution, id, k)
		}
	}
	actor := actorOrDefault(req.ActorID)
	log := e.log().With(zap.String("project_id", req.ProjectID), zap.String("actor_id", actor))

	unlock := e.lock()
	defer unlock()

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return SettlementResult{}, err
	}
	defer tx.Rollback()

	project, err := e.Repo.GetProjectTx(ctx, tx, req.ProjectID)
	if err != nil {
		return SettlementResult{}, err
	}
	if project.Completed {
		return SettlementResult{}, fmt.Errorf("%w: %s", ErrProjectCompleted, project.ID)
	}

	ledger := warnLedger{Ledger: repo.TxLedger{Repo: e.Repo, Tx: tx}, log: log}
	board := repo.TxBoard{Repo: e.Repo, Tx: tx, Now: e.now}
	verdict, err := Settle(ctx, req.Contributions, &project, ledger, board)
	if err != nil {
		return SettlementResult{}, err
	}
	res := SettlementResult{Verdict: verdict, Message: verdict.Message(), Project: project}
	if verdict != Sufficient {
		log.Info("settlement rejected", zap.String("verdict", string(verdict)))
		return res, nil
	}

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.MarkProjectCompleted(ctx, tx, project.ID, now); err != nil {
		if errors.Is(err, repo.ErrAlreadyCompleted) {
			return SettlementResult{}, fmt.Errorf("%w: %s", ErrProjectCompleted, project.ID)
		}
		return SettlementResult{}, err
	}
	project.CompletedAt = &now

	outcome := project.Outcome()
	s := domain.Settlement{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		ActorID:       actor,
		Contributions: req.Contributions,
		Total:         Aggregate(req.Contributions),
		Outcome:       make(map[string]int, len(outcome)),
		CreatedAt:     now,
	}
	for m, v := range outcome {
		s.Outcome[string(m)] = v
	}
	if err := e.Repo.InsertSettlement(ctx, tx, s); err != nil {
		return SettlementResult{}, err
	}

	for _, id := range req.Contributions.IDs() {
		if err := e.Events.Append(ctx, tx, events.TypeResourcesDeducted, "character", id, actor, events.EventPayload{
			"project_id": project.ID,
			"amount":     req.Contributions[id],
		}); err != nil {
			return SettlementResult{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeMetricsApplied, "project", project.ID, actor, events.EventPayload{"outcome": s.Outcome}); err != nil {
		return SettlementResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeSettlementCommitted, "settlement", s.ID, actor, events.EventPayload{
		"project_id": project.ID,
		"total":      s.Total,
	}); err != nil {
		return SettlementResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCompleted, "project", project.ID, actor, nil); err != nil {
		return SettlementResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SettlementResult{}, err
	}
	log.Info("settlement committed",
		zap.String("settlement_id", s.ID),
		zap.Stringer("total", s.Total),
		zap.Int("contributors", len(req.Contributions)))

	if e.Notify != nil {
		e.Notify.ProjectCompleted(ctx, project.ID)
	}
	res.Project = project
	res.Settlement = &s
	return res, nil
}

// warnLedger logs contributions larger than the contributor's balance; the
// balance still floors at zero.
type warnLedger struct {
	Ledger
	log *zap.Logger
}

func (l warnLedger) Deduct(ctx context.Context, characterID string, amount vector.Resources) error {
	bal, err := l.Ledger.Balance(ctx, characterID)
	if err != nil {
		return err
	}
	for _, k := range vector.Kinds() {
		if amount.Get(k) > bal.Get(k) {
			l.log.Warn("contribution exceeds balance",
				zap.String("character_id", characterID),
				zap.Stringer("kind", k),
				zap.Int("balance", bal.Get(k)),
				zap.Int("amount", amount.Get(k)))
		}
	}
	return l.Ledger.Deduct(ctx, characterID, amount)
}
