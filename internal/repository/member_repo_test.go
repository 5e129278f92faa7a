package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/database"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/repository"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. Tests that
// need real row locks skip without it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

func TestMemberRepo_DeductPointsConcurrent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := repository.NewMemberRepo(pool)

	const premium, funded, workers = 25000, 5, 20
	m := &models.Member{
		ID:               uuid.New(),
		Username:         "deduct-" + uuid.NewString()[:8],
		PasswordHash:     "x",
		Role:             models.RoleMember,
		ApprovalStatus:   models.ApprovalApproved,
		PointBalance:     premium * funded,
		SettlementMethod: models.SettlementPoint,
	}
	require.NoError(t, repo.Create(ctx, m))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM members WHERE id = $1`, m.ID)
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := pool.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback(ctx)
			_, err = repo.DeductPoints(ctx, tx, m.ID, premium)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				mu.Lock()
				short++
				mu.Unlock()
				return
			case !assert.NoError(t, err):
				return
			}
			if assert.NoError(t, tx.Commit(ctx)) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, funded, succeeded)
	assert.Equal(t, workers-funded, short)
	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.PointBalance)
}

func TestMemberRepo_DeductPointsShort(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := repository.NewMemberRepo(pool)

	m := &models.Member{
		ID:               uuid.New(),
		Username:         "short-" + uuid.NewString()[:8],
		PasswordHash:     "x",
		Role:             models.RoleMember,
		ApprovalStatus:   models.ApprovalApproved,
		PointBalance:     1000,
		SettlementMethod: models.SettlementPoint,
	}
	require.NoError(t, repo.Create(ctx, m))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM members WHERE id = $1`, m.ID)
	})

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = repo.DeductPoints(ctx, tx, m.ID, 1001)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	bal, err := repo.DeductPoints(ctx, tx, m.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}
