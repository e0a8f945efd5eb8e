package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSeasonTransitionForward(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewSeasonRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, state, supply_target, created_at, updated_at FROM seasons WHERE id = ?`)).
		WithArgs("genesis").
		WillReturnRows(sqlmock.NewRows([]string{"name", "state", "supply_target", "created_at", "updated_at"}).
			AddRow("Genesis", "planning", int64(1000), testTime, testTime))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE seasons SET state = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND state = ?`)).
		WithArgs(model.SeasonActive, "genesis", model.SeasonPlanning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Transition(context.Background(), "genesis", model.SeasonActive))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonTransitionBackwardRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewSeasonRepo(db)

	// Ended seasons never reopen; the guard fires before any UPDATE.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, state, supply_target`)).
		WithArgs("genesis").
		WillReturnRows(sqlmock.NewRows([]string{"name", "state", "supply_target", "created_at", "updated_at"}).
			AddRow("Genesis", "ended", int64(1000), testTime, testTime))

	err = r.Transition(context.Background(), "genesis", model.SeasonActive)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonTransitionLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewSeasonRepo(db)

	// Another admin moved the season between our read and our
	// guarded update: zero rows match and the call reports conflict.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, state, supply_target`)).
		WithArgs("genesis").
		WillReturnRows(sqlmock.NewRows([]string{"name", "state", "supply_target", "created_at", "updated_at"}).
			AddRow("Genesis", "planning", int64(1000), testTime, testTime))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE seasons SET state = ?`)).
		WithArgs(model.SeasonActive, "genesis", model.SeasonPlanning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = r.Transition(context.Background(), "genesis", model.SeasonActive)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
