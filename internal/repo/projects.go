package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"deliberation/internal/domain"
)

const projectColumns = `id,name,COALESCE(description,''),required_resources,outcomes,is_completed,completed_at,created_at`

// Project listing filters.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusAll       = "all"
)

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var completedAt sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.RequiredResources, &p.Outcomes, &p.Completed, &completedAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.CompletedAt = optionalString(completedAt)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO projects(id,name,description,required_resources,outcomes,is_completed,completed_at,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.RequiredResources, p.Outcomes, p.Completed, nullableStringPtr(p.CompletedAt), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(r.on(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return p, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProjects returns projects by status: open (default), completed or all.
func (r Repo) ListProjects(ctx context.Context, status string) ([]domain.Project, error) {
	return r.ListProjectsTx(ctx, nil, status)
}

func (r Repo) ListProjectsTx(ctx context.Context, tx *sql.Tx, status string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	switch status {
	case "", StatusOpen:
		query += ` WHERE is_completed=0`
	case StatusCompleted:
		query += ` WHERE is_completed=1`
	case StatusAll:
	default:
		return nil, fmt.Errorf("project status %q: %w", status, ErrInvalidFilter)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.on(tx).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// MarkProjectCompleted flips the completion flag false->true. It fails with
// ErrAlreadyCompleted when the flag is already set.
func (r Repo) MarkProjectCompleted(ctx context.Context, tx *sql.Tx, id, completedAt string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET is_completed=1, completed_at=? WHERE id=? AND is_completed=0`, completedAt, id)
	if err != nil {
		return fmt.Errorf("complete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.GetProjectTx(ctx, tx, id); err != nil {
		return err
	}
	return fmt.Errorf("project %s: %w", id, ErrAlreadyCompleted)
}

// RestoreProjectState overwrites the completion flag. Only snapshot restore
// uses it.
func (r Repo) RestoreProjectState(ctx context.Context, tx *sql.Tx, id string, completed bool, completedAt *string) error {
	if !completed {
		completedAt = nil
	}
	res, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET is_completed=?, completed_at=? WHERE id=?`, completed, nullableStringPtr(completedAt), id)
	if err != nil {
		return fmt.Errorf("restore project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}
