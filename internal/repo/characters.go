package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"deliberation/internal/domain"
	"deliberation/internal/vector"
)

const characterColumns = `id,name,COALESCE(interests,''),COALESCE(utility_criteria,''),COALESCE(reading,''),COALESCE(starting_resources,''),time,money,labor,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (domain.Character, error) {
	var c domain.Character
	err := row.Scan(&c.ID, &c.Name, &c.Interests, &c.UtilityCriteria, &c.Reading, &c.StartingResources,
		&c.Resources.Time, &c.Resources.Money, &c.Resources.Labor, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertCharacter(ctx context.Context, tx *sql.Tx, c domain.Character) error {
	if _, neg := c.Resources.Negative(); neg {
		return fmt.Errorf("character %s: negative starting resources", c.ID)
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO characters(id,name,interests,utility_criteria,reading,starting_resources,time,money,labor,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Interests), nullable(c.UtilityCriteria), nullable(c.Reading), nullable(c.StartingResources),
		c.Resources.Time, c.Resources.Money, c.Resources.Labor, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert character %s: %w", c.ID, err)
	}
	return nil
}

func (r Repo) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	return r.GetCharacterTx(ctx, nil, id)
}

func (r Repo) GetCharacterTx(ctx context.Context, tx *sql.Tx, id string) (domain.Character, error) {
	c, err := scanCharacter(r.on(tx).QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return c, fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	return c, err
}

// GetCharacterByName is the bare name lookup behind login.
func (r Repo) GetCharacterByName(ctx context.Context, name string) (domain.Character, error) {
	c, err := scanCharacter(r.DB.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE name=?`, name))
	if errors.Is(err, ErrNotFound) {
		return c, fmt.Errorf("character %q: %w", name, ErrNotFound)
	}
	return c, err
}

func (r Repo) ListCharacters(ctx context.Context) ([]domain.Character, error) {
	return r.ListCharactersTx(ctx, nil)
}

func (r Repo) ListCharactersTx(ctx context.Context, tx *sql.Tx) ([]domain.Character, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountCharacters(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters`).Scan(&n)
	return n, err
}

// SetCharacterResources overwrites a character's balances.
func (r Repo) SetCharacterResources(ctx context.Context, tx *sql.Tx, id string, res vector.Resources) error {
	if k, neg := res.Negative(); neg {
		return fmt.Errorf("character %s: negative %s balance", id, k)
	}
	out, err := r.on(tx).ExecContext(ctx, `UPDATE characters SET time=?, money=?, labor=? WHERE id=?`,
		res.Time, res.Money, res.Labor, id)
	if err != nil {
		return fmt.Errorf("update character %s: %w", id, err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	return nil
}
