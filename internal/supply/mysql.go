package supply

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// MySQLStore persists supply accounting in MySQL.  Counter advances
// are expressed as single-statement conditional updates
// (current_count < max_count in the WHERE clause) so that the cap
// check and the increment are one atomic unit at the database level;
// no application-level read-modify-write is involved.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a supply store bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// DB exposes the underlying handle for callers that need to compose
// transactions across repositories.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// SeasonState implements Store.
func (s *MySQLStore) SeasonState(ctx context.Context, seasonID string) (model.SeasonState, error) {
	var st string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM seasons WHERE id = ?`, seasonID).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSeasonNotFound
	}
	if err != nil {
		return "", err
	}
	return model.SeasonState(st), nil
}

// TierCap implements Store.
func (s *MySQLStore) TierCap(ctx context.Context, seasonID string, tier model.Tier) (model.TierCap, error) {
	tc := model.TierCap{SeasonID: seasonID, Tier: tier}
	err := s.db.QueryRowContext(ctx,
		`SELECT max_count, current_count FROM tier_caps WHERE season_id = ? AND tier = ?`,
		seasonID, tier,
	).Scan(&tc.MaxCount, &tc.CurrentCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TierCap{}, ErrTierNotConfigured
	}
	if err != nil {
		return model.TierCap{}, err
	}
	return tc, nil
}

// ArtistCap implements Store.
func (s *MySQLStore) ArtistCap(ctx context.Context, seasonID string, tier model.Tier, artistID string) (model.ArtistCap, bool, error) {
	ac := model.ArtistCap{SeasonID: seasonID, Tier: tier, ArtistID: artistID}
	err := s.db.QueryRowContext(ctx,
		`SELECT max_count, current_count FROM artist_caps WHERE season_id = ? AND tier = ? AND artist_id = ?`,
		seasonID, tier, artistID,
	).Scan(&ac.MaxCount, &ac.CurrentCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ArtistCap{}, false, nil
	}
	if err != nil {
		return model.ArtistCap{}, false, err
	}
	return ac, true, nil
}

// ReserveSlot implements Store.  All counter advances run inside one
// transaction; rolling back on an exhausted artist ceiling also
// undoes the tier increment, so partial consumption is impossible.
func (s *MySQLStore) ReserveSlot(ctx context.Context, seasonID string, tier model.Tier, artistID string, artistDefault uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var st string
	err = tx.QueryRowContext(ctx, `SELECT state FROM seasons WHERE id = ?`, seasonID).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSeasonNotFound
	}
	if err != nil {
		return err
	}
	if model.SeasonState(st) != model.SeasonActive {
		return ErrSeasonInactive
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tier_caps SET current_count = current_count + 1
		 WHERE season_id = ? AND tier = ? AND current_count < max_count`,
		seasonID, tier,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the tier is full or it was never configured.
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM tier_caps WHERE season_id = ? AND tier = ?`, seasonID, tier,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTierNotConfigured
		}
		if err != nil {
			return err
		}
		return ErrTierCapReached
	}

	if artistID != "" {
		// First mint for an artist at a scarce tier creates the row
		// with the default ceiling.  INSERT IGNORE keeps this a no-op
		// when the row already exists.
		if _, err = tx.ExecContext(ctx,
			`INSERT IGNORE INTO artist_caps (season_id, tier, artist_id, max_count, current_count)
			 VALUES (?, ?, ?, ?, 0)`,
			seasonID, tier, artistID, artistDefault,
		); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE artist_caps SET current_count = current_count + 1
			 WHERE season_id = ? AND tier = ? AND artist_id = ? AND current_count < max_count`,
			seasonID, tier, artistID,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrArtistCapReached
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	committed = true
	return nil
}

// TierCaps implements Store.
func (s *MySQLStore) TierCaps(ctx context.Context, seasonID string) ([]model.TierCap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, max_count, current_count FROM tier_caps WHERE season_id = ?
		 ORDER BY FIELD(tier, 'legendary', 'platinum', 'gold', 'community')`,
		seasonID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TierCap
	for rows.Next() {
		tc := model.TierCap{SeasonID: seasonID}
		if err := rows.Scan(&tc.Tier, &tc.MaxCount, &tc.CurrentCount); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// SeedTierCap implements Store.
func (s *MySQLStore) SeedTierCap(ctx context.Context, seasonID string, tier model.Tier, max uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO tier_caps (season_id, tier, max_count, current_count) VALUES (?, ?, ?, 0)`,
		seasonID, tier, max,
	)
	return err
}

// SeedArtistCap implements Store.
func (s *MySQLStore) SeedArtistCap(ctx context.Context, seasonID string, tier model.Tier, artistID string, max uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO artist_caps (season_id, tier, artist_id, max_count, current_count) VALUES (?, ?, ?, ?, 0)`,
		seasonID, tier, artistID, max,
	)
	return err
}
