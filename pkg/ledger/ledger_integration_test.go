//go:build integration

package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

func setupLedgerDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("gymledger_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	logger := observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
	require.NoError(t, postgres.RunMigrations(ctx, db, logger))

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})
	return db
}

func TestLedgerEndToEnd(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()

	plans := catalog.NewPostgresService(db)
	svc := NewPostgresService(db, plans, nil)

	plan, err := plans.CreatePlan(ctx, owner, &catalog.CreatePlanRequest{
		Name: "Monthly", DurationType: "month", Duration: 1, Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = plans.CreatePlan(ctx, owner, &catalog.CreatePlanRequest{
		Name: "Monthly", DurationType: "months", Duration: 1, Amount: decimal.NewFromInt(1000),
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "identical plan tuple")

	created, err := svc.CreateMember(ctx, owner, &CreateMemberRequest{
		Name: "Asha", Contact: "555-0100", Email: "asha@example.com", Gender: "female", Batch: "morning",
		Plan: plan.ID, JoinDate: "2024-01-15",
		AdmissionAmount: decPtr("200"), CollectedAmount: decPtr("500"),
	})
	require.NoError(t, err)
	assert.Equal(t, "700.00", created.Member.DueAmount.StringFixed(2))

	_, err = svc.CreateMember(ctx, owner, &CreateMemberRequest{
		Name: "Other", Contact: "555-0100", Email: "other@example.com", Gender: "male", Batch: "evening",
		Plan: plan.ID, JoinDate: "2024-01-16",
		AdmissionAmount: decPtr("0"), CollectedAmount: decPtr("10"),
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate contact")

	paid, err := svc.RecordPayment(ctx, owner, &RecordPaymentRequest{
		MemberID: created.Member.ID, Plan: plan.ID, Amount: dec("700"),
	})
	require.NoError(t, err)
	assert.True(t, paid.Member.DueAmount.IsZero())
	assert.Equal(t, "1200.00", paid.Member.CollectedAmount.StringFixed(2))

	_, err = svc.RecordPayment(ctx, owner, &RecordPaymentRequest{
		MemberID: created.Member.ID, Plan: plan.ID, Amount: dec("1"),
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	history, err := svc.GetMemberWithPaymentHistory(ctx, owner, created.Member.ID)
	require.NoError(t, err)
	require.Len(t, history.PaymentHistory, 2)
	total := decimal.Zero
	for _, p := range history.PaymentHistory {
		total = total.Add(p.Amount)
	}
	assert.True(t, total.Equal(history.CollectedAmount))

	drift, err := svc.Reconcile(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, drift)

	err = svc.DeleteMember(ctx, owner, created.Member.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "payments reference the member")

	// other owners see nothing
	_, err = svc.GetMember(ctx, owner+1, created.Member.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLedgerConcurrentPaymentsNeverOverdraw(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()

	plans := catalog.NewPostgresService(db)
	svc := NewPostgresService(db, plans, nil)

	plan, err := plans.CreatePlan(ctx, owner, &catalog.CreatePlanRequest{
		Name: "Trial", DurationType: "day", Duration: 30, Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	created, err := svc.CreateMember(ctx, owner, &CreateMemberRequest{
		Name: "Ravi", Contact: "555-0200", Email: "ravi@example.com", Gender: "male", Batch: "evening",
		Plan: plan.ID, JoinDate: "2024-01-15",
		AdmissionAmount: decPtr("0"), CollectedAmount: decPtr("100"),
	})
	require.NoError(t, err)

	// 900 due; ten concurrent payments of 100 can settle at most nine
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, owner, &RecordPaymentRequest{
				MemberID: created.Member.ID, Plan: plan.ID, Amount: dec("100"),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, succeeded)

	m, err := svc.GetMember(ctx, owner, created.Member.ID)
	require.NoError(t, err)
	assert.True(t, m.DueAmount.IsZero())
	assert.Equal(t, "1000.00", m.CollectedAmount.StringFixed(2))

	drift, err := svc.Reconcile(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, drift)
}
