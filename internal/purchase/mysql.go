package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

const mysqlErrDuplicateEntry = 1062

// MySQLStore persists purchase records in the purchases table.  The
// unique index on idempotency_key makes Claim atomic: concurrent
// inserts for the same key race on the index, exactly one wins, and
// the losers read back the winner's committed row.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a purchase store bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// Claim implements Store.
func (s *MySQLStore) Claim(ctx context.Context, rec model.PurchaseRecord) (bool, *model.PurchaseRecord, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (idempotency_key, user_id, product_key, status)
		 VALUES (?, ?, ?, 'pending')`,
		rec.IdempotencyKey, rec.UserID, rec.ProductKey,
	)
	if err == nil {
		created, err := s.Get(ctx, rec.IdempotencyKey)
		if err != nil {
			return false, nil, err
		}
		return true, created, nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
		existing, gerr := s.Get(ctx, rec.IdempotencyKey)
		if gerr != nil {
			return false, nil, gerr
		}
		return false, existing, nil
	}
	return false, nil, fmt.Errorf("claim purchase: %w", err)
}

// Get implements Store.
func (s *MySQLStore) Get(ctx context.Context, key string) (*model.PurchaseRecord, error) {
	rec := model.PurchaseRecord{IdempotencyKey: key}
	var cardID sql.NullInt64
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, product_key, status, failure_reason, card_id, created_at, updated_at
		 FROM purchases WHERE idempotency_key = ?`, key,
	).Scan(&rec.UserID, &rec.ProductKey, &rec.Status, &reason, &cardID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		rec.FailureReason = reason.String
	}
	if cardID.Valid {
		id := uint64(cardID.Int64)
		rec.CardID = &id
	}
	return &rec, nil
}

// MarkDelivered implements Store.  The WHERE clause pins the current
// status, so a concurrent or repeated transition cannot move the
// record backwards.
func (s *MySQLStore) MarkDelivered(ctx context.Context, key string, cardID uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE purchases SET status = 'delivered', card_id = ?, updated_at = UTC_TIMESTAMP()
		 WHERE idempotency_key = ? AND status = 'pending'`,
		cardID, key,
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, key, model.PurchaseDelivered)
}

// MarkFailed implements Store.
func (s *MySQLStore) MarkFailed(ctx context.Context, key, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE purchases SET status = 'failed', failure_reason = ?, updated_at = UTC_TIMESTAMP()
		 WHERE idempotency_key = ? AND status = 'pending'`,
		reason, key,
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, key, model.PurchaseFailed)
}

// MarkRefunded implements Store.
func (s *MySQLStore) MarkRefunded(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE purchases SET status = 'refunded', updated_at = UTC_TIMESTAMP()
		 WHERE idempotency_key = ? AND status = 'delivered'`,
		key,
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, key, model.PurchaseRefunded)
}

// checkTransition classifies a guarded update that matched no rows:
// reaching the target state through another worker is a no-op,
// anything else is either an unknown key or a backwards move.
func (s *MySQLStore) checkTransition(ctx context.Context, res sql.Result, key string, want model.PurchaseStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if cur.Status == want {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, want)
}
