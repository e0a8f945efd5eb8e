package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// CardRepo provides data access to the cards table.  The columns
// written at mint time (serial, tier, artist, season, source) are
// immutable afterwards; only ownership and the burn marker ever
// change, and neither change releases the serial or returns supply.
type CardRepo struct {
	db *sql.DB
}

// NewCardRepo returns a new CardRepo bound to the provided database.
func NewCardRepo(db *sql.DB) *CardRepo { return &CardRepo{db: db} }

// Create inserts a freshly minted card and returns its id.
func (r *CardRepo) Create(ctx context.Context, c model.Card) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (serial, tier, artist_id, season_id, pack_source, owner_id, scarcity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Serial, c.Tier, c.ArtistID, c.SeasonID, c.PackSource, c.OwnerID, c.Scarcity,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Get returns one card or ErrNotFound.
func (r *CardRepo) Get(ctx context.Context, id uint64) (*model.Card, error) {
	c := model.Card{ID: id}
	var owner sql.NullInt64
	var burned sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT serial, tier, artist_id, season_id, pack_source, owner_id, scarcity, burned_at, created_at
		 FROM cards WHERE id = ?`, id,
	).Scan(&c.Serial, &c.Tier, &c.ArtistID, &c.SeasonID, &c.PackSource, &owner, &c.Scarcity, &burned, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		o := uint64(owner.Int64)
		c.OwnerID = &o
	}
	if burned.Valid {
		t := burned.Time
		c.BurnedAt = &t
	}
	return &c, nil
}

// ListByOwner returns all live cards held by a user.
func (r *CardRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial, tier, artist_id, season_id, pack_source, scarcity, created_at
		 FROM cards WHERE owner_id = ? AND burned_at IS NULL ORDER BY created_at DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Card
	for rows.Next() {
		c := model.Card{}
		if err := rows.Scan(&c.ID, &c.Serial, &c.Tier, &c.ArtistID, &c.SeasonID, &c.PackSource, &c.Scarcity, &c.CreatedAt); err != nil {
			return nil, err
		}
		o := ownerID
		c.OwnerID = &o
		out = append(out, c)
	}
	return out, rows.Err()
}

// Burn marks a card burned.  Burning an already burned card is a
// conflict; the serial stays consumed either way.
func (r *CardRepo) Burn(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET burned_at = UTC_TIMESTAMP() WHERE id = ? AND burned_at IS NULL`, id,
	)
	if err != nil {
		return err
	}
	return r.oneRowOr(ctx, res, id, ErrConflict)
}

// Transfer moves a live card to a new owner.
func (r *CardRepo) Transfer(ctx context.Context, id, newOwnerID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET owner_id = ? WHERE id = ? AND burned_at IS NULL`, newOwnerID, id,
	)
	if err != nil {
		return err
	}
	return r.oneRowOr(ctx, res, id, ErrConflict)
}

// Revoke clears ownership after a refund.  Supply counters and the
// serial are untouched: a revoked slot is consumed forever.
func (r *CardRepo) Revoke(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET owner_id = NULL WHERE id = ? AND burned_at IS NULL`, id,
	)
	if err != nil {
		return err
	}
	return r.oneRowOr(ctx, res, id, ErrConflict)
}

// oneRowOr maps a zero-row guarded update to ErrNotFound when the
// card does not exist, or to fallback when it exists but the guard
// rejected the move.
func (r *CardRepo) oneRowOr(ctx context.Context, res sql.Result, id uint64, fallback error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fallback
}
