package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"deliberation/internal/domain"
)

func (r Repo) InsertSettlement(ctx context.Context, tx *sql.Tx, s domain.Settlement) error {
	contrib, err := json.Marshal(s.Contributions)
	if err != nil {
		return fmt.Errorf("marshal contributions: %w", err)
	}
	total, err := json.Marshal(s.Total)
	if err != nil {
		return fmt.Errorf("marshal total: %w", err)
	}
	outcome, err := json.Marshal(s.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO settlements(id,project_id,actor_id,contributions_json,total_json,outcome_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.ActorID, string(contrib), string(total), string(outcome), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert settlement %s: %w", s.ID, err)
	}
	return nil
}

func scanSettlement(row rowScanner) (domain.Settlement, error) {
	var s domain.Settlement
	var contrib, total, outcome string
	err := row.Scan(&s.ID, &s.ProjectID, &s.ActorID, &contrib, &total, &outcome, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(contrib), &s.Contributions); err != nil {
		return s, fmt.Errorf("settlement %s contributions: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(total), &s.Total); err != nil {
		return s, fmt.Errorf("settlement %s total: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(outcome), &s.Outcome); err != nil {
		return s, fmt.Errorf("settlement %s outcome: %w", s.ID, err)
	}
	return s, nil
}

// ListSettlements returns the settlement history, newest first.
func (r Repo) ListSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	query := `SELECT id,project_id,actor_id,contributions_json,total_json,outcome_json,created_at FROM settlements ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetSettlementForProject(ctx context.Context, projectID string) (domain.Settlement, error) {
	s, err := scanSettlement(r.DB.QueryRowContext(ctx, `SELECT id,project_id,actor_id,contributions_json,total_json,outcome_json,created_at FROM settlements WHERE project_id=?`, projectID))
	if errors.Is(err, ErrNotFound) {
		return s, fmt.Errorf("settlement for project %s: %w", projectID, ErrNotFound)
	}
	return s, err
}

// DeleteSettlementsExcept removes history rows for projects not in keep.
func (r Repo) DeleteSettlementsExcept(ctx context.Context, tx *sql.Tx, keep map[string]bool) error {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT project_id FROM settlements`)
	if err != nil {
		return err
	}
	var drop []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			drop = append(drop, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range drop {
		if _, err := r.on(tx).ExecContext(ctx, `DELETE FROM settlements WHERE project_id=?`, id); err != nil {
			return fmt.Errorf("delete settlement for %s: %w", id, err)
		}
	}
	return nil
}
