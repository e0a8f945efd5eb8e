package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// SeasonRepo provides data access to the seasons table.  Lifecycle
// transitions are enforced here: a season only ever moves forward
// (planning → active → ended → legacy), and the guard runs inside
// the UPDATE statement so concurrent admin calls cannot race a
// season backwards.
type SeasonRepo struct {
	db *sql.DB
}

// NewSeasonRepo returns a new SeasonRepo bound to the provided database.
func NewSeasonRepo(db *sql.DB) *SeasonRepo { return &SeasonRepo{db: db} }

// Create inserts a season in planning state.  A duplicate id maps to
// ErrConflict.
func (r *SeasonRepo) Create(ctx context.Context, id, name string, supplyTarget uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO seasons (id, name, state, supply_target) VALUES (?, ?, 'planning', ?)`,
		id, name, supplyTarget,
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrConflict
	}
	return err
}

// GetByID returns one season or ErrNotFound.
func (r *SeasonRepo) GetByID(ctx context.Context, id string) (*model.Season, error) {
	s := model.Season{ID: id}
	err := r.db.QueryRowContext(ctx,
		`SELECT name, state, supply_target, created_at, updated_at FROM seasons WHERE id = ?`, id,
	).Scan(&s.Name, &s.State, &s.SupplyTarget, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all seasons, newest first.
func (r *SeasonRepo) List(ctx context.Context) ([]model.Season, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, state, supply_target, created_at, updated_at FROM seasons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Season
	for rows.Next() {
		var s model.Season
		if err := rows.Scan(&s.ID, &s.Name, &s.State, &s.SupplyTarget, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Transition moves a season to next.  The current state is loaded
// and validated, then the UPDATE pins it in the WHERE clause; if
// another admin moved the season in between, zero rows match and
// ErrConflict is returned instead of silently overwriting.
func (r *SeasonRepo) Transition(ctx context.Context, id string, next model.SeasonState) error {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !cur.State.CanTransition(next) {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE seasons SET state = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND state = ?`,
		next, id, cur.State,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
