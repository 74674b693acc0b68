package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

const owner int64 = 7

var (
	fixedNow = time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)

	memberRowColumns = []string{
		"id", "created_by", "name", "contact", "email", "gender", "address", "batch", "plan_id", "join_date",
		"admission_amount", "discount", "collected_amount", "due_amount", "created_at", "updated_at",
	}
	paymentRowColumns = []string{"id", "created_by", "member_id", "plan_id", "amount", "payment_date", "created_at"}
)

// mockPlans is a catalog.Service backed by a map
type mockPlans struct {
	getPlanFunc func(ctx context.Context, id int64) (*catalog.Plan, error)
}

func (m *mockPlans) CreatePlan(ctx context.Context, ownerID int64, req *catalog.CreatePlanRequest) (*catalog.Plan, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPlans) GetPlan(ctx context.Context, id int64) (*catalog.Plan, error) {
	return m.getPlanFunc(ctx, id)
}

func (m *mockPlans) ListPlans(ctx context.Context, ownerID int64) ([]*catalog.Plan, error) {
	return nil, errors.New("not implemented")
}

func plansWith(plans ...*catalog.Plan) *mockPlans {
	byID := map[int64]*catalog.Plan{}
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &mockPlans{getPlanFunc: func(ctx context.Context, id int64) (*catalog.Plan, error) {
		if p, ok := byID[id]; ok {
			cp := *p
			return &cp, nil
		}
		return nil, apperr.NotFound("plan %d not found", id)
	}}
}

func monthlyPlan() *catalog.Plan {
	return &catalog.Plan{ID: 1, Name: "Monthly", DurationType: catalog.DurationMonth, Duration: 1, Amount: decimal.NewFromInt(1000), CreatedBy: owner}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestService(t *testing.T, plans catalog.Service) (*PostgresService, sqlmock.Sqlmock, *observability.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewPostgresService(db, plans, metrics)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock, metrics
}

func memberRow(rows *sqlmock.Rows, id int64, collected, due string) *sqlmock.Rows {
	return rows.AddRow(id, owner, "Asha", "555-0100", "asha@example.com", "female", "", "morning", 1,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "200.00", "0.00", collected, due, fixedNow, fixedNow)
}

func validCreateRequest() *CreateMemberRequest {
	return &CreateMemberRequest{
		Name:            "Asha",
		Contact:         "555-0100",
		Email:           "Asha@Example.com",
		Gender:          "female",
		Batch:           "morning",
		Plan:            1,
		JoinDate:        "2024-01-15",
		AdmissionAmount: decPtr("200"),
		CollectedAmount: decPtr("500"),
	}
}

func TestCreateMember(t *testing.T) {
	svc, mock, metrics := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT contact, email FROM members").
		WithArgs("555-0100", "asha@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WithArgs(owner, "Asha", "555-0100", "asha@example.com", "female", "", "morning", int64(1),
			sqlmock.AnyArg(), dec("200"), dec("0"), dec("500"), dec("700")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, fixedNow, fixedNow))
	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(owner, int64(10), int64(1), dec("500"), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(100, fixedNow))
	mock.ExpectCommit()

	result, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	m := result.Member
	assert.Equal(t, int64(10), m.ID)
	assert.True(t, dec("700").Equal(m.DueAmount), "due = 200 + 1000 - 500 - 0")
	assert.True(t, m.Discount.IsZero())
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), m.JoinDate)
	require.NotNil(t, m.Plan)
	assert.Equal(t, "Monthly", m.Plan.Name)

	p := result.Payment
	assert.Equal(t, int64(100), p.ID)
	assert.Equal(t, int64(10), p.MemberID)
	assert.True(t, m.CollectedAmount.Equal(p.Amount))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MembersCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PaymentsRecordedTotal))
}

func TestCreateMember_WithDiscount(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	req := validCreateRequest()
	req.Discount = decPtr("100.50")

	mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WithArgs(owner, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), dec("200"), dec("100.5"), dec("500"), dec("599.5")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, fixedNow, fixedNow))
	mock.ExpectQuery("INSERT INTO payments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(101, fixedNow))
	mock.ExpectCommit()

	result, err := svc.CreateMember(context.Background(), owner, req)
	require.NoError(t, err)
	assert.Equal(t, "599.50", result.Member.DueAmount.StringFixed(2))
}

func TestCreateMember_Validation(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	tests := []struct {
		name    string
		mutate  func(r *CreateMemberRequest)
		message string
	}{
		{"missing name and email", func(r *CreateMemberRequest) { r.Name = ""; r.Email = " " }, "name, email"},
		{"missing plan", func(r *CreateMemberRequest) { r.Plan = 0 }, "plan"},
		{"missing collected", func(r *CreateMemberRequest) { r.CollectedAmount = nil }, "collectedAmount"},
		{"bad join date", func(r *CreateMemberRequest) { r.JoinDate = "15/01/2024" }, "joinDate"},
		{"negative admission", func(r *CreateMemberRequest) { r.AdmissionAmount = decPtr("-1") }, "admissionAmount"},
		{"negative discount", func(r *CreateMemberRequest) { r.Discount = decPtr("-5") }, "discount"},
		{"zero collected", func(r *CreateMemberRequest) { r.CollectedAmount = decPtr("0") }, "collectedAmount must be positive"},
		{"sub-cent collected", func(r *CreateMemberRequest) { r.CollectedAmount = decPtr("0.004") }, "collectedAmount must have at most 2 decimal places"},
		{"sub-cent admission", func(r *CreateMemberRequest) { r.AdmissionAmount = decPtr("500.001") }, "admissionAmount must have at most 2 decimal places"},
		{"sub-cent discount", func(r *CreateMemberRequest) { r.Discount = decPtr("0.005") }, "discount must have at most 2 decimal places"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)
			_, err := svc.CreateMember(context.Background(), owner, req)
			require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := svc.CreateMember(context.Background(), owner, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_Overpaid(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))
	mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))

	req := validCreateRequest()
	req.CollectedAmount = decPtr("1300")

	_, err := svc.CreateMember(context.Background(), owner, req)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_Conflict(t *testing.T) {
	t.Run("existing contact", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))
		mock.ExpectQuery("SELECT contact, email FROM members").
			WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}).AddRow("555-0100", "other@example.com"))

		_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
		require.True(t, apperr.Is(err, apperr.KindConflict))
		assert.Contains(t, err.Error(), "contact 555-0100")
	})

	t.Run("existing email", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))
		mock.ExpectQuery("SELECT contact, email FROM members").
			WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}).AddRow("555-9999", "asha@example.com"))

		_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
		require.True(t, apperr.Is(err, apperr.KindConflict))
		assert.Contains(t, err.Error(), "email asha@example.com")
	})

	t.Run("lost race on unique index", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))
		mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO members").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateMember_PlanNotFound(t *testing.T) {
	t.Run("unknown plan", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith())
		mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))

		_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("another owner's plan", func(t *testing.T) {
		foreign := monthlyPlan()
		foreign.CreatedBy = 99
		svc, mock, _ := newTestService(t, plansWith(foreign))
		mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))

		_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestCreateMember_PaymentFailureRollsBackMember(t *testing.T) {
	svc, mock, metrics := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, fixedNow, fixedNow))
	mock.ExpectQuery("INSERT INTO payments").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "failed to insert payment")
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, testutil.ToFloat64(metrics.MembersCreatedTotal))
}

func TestCreateMember_RollbackFailureIsInternal(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, fixedNow, fixedNow))
	mock.ExpectQuery("INSERT INTO payments").WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "failed to roll back transaction")
}

func TestCreateMember_CommitFailure(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT contact, email FROM members").WillReturnRows(sqlmock.NewRows([]string{"contact", "email"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, fixedNow, fixedNow))
	mock.ExpectQuery("INSERT INTO payments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(100, fixedNow))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err := svc.CreateMember(context.Background(), owner, validCreateRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestGetMember(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT (.+) FROM members WHERE id = \\$1 AND created_by = \\$2").
		WithArgs(int64(10), owner).
		WillReturnRows(memberRow(sqlmock.NewRows(memberRowColumns), 10, "500.00", "700.00"))

	m, err := svc.GetMember(context.Background(), owner, 10)
	require.NoError(t, err)
	assert.Equal(t, "Asha", m.Name)
	assert.Equal(t, "700.00", m.DueAmount.StringFixed(2))
	require.NotNil(t, m.Plan)
	assert.Equal(t, int64(1), m.Plan.ID)
}

func TestGetMember_NotFound(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT (.+) FROM members").WithArgs(int64(404), owner).
		WillReturnRows(sqlmock.NewRows(memberRowColumns))

	_, err := svc.GetMember(context.Background(), owner, 404)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListMembers(t *testing.T) {
	lookups := 0
	plans := &mockPlans{getPlanFunc: func(ctx context.Context, id int64) (*catalog.Plan, error) {
		lookups++
		return monthlyPlan(), nil
	}}
	svc, mock, _ := newTestService(t, plans)

	rows := sqlmock.NewRows(memberRowColumns)
	memberRow(rows, 10, "500.00", "700.00")
	memberRow(rows, 11, "1200.00", "0.00")
	mock.ExpectQuery("SELECT (.+) FROM members WHERE created_by = \\$1 ORDER BY id").
		WithArgs(owner).
		WillReturnRows(rows)

	members, err := svc.ListMembers(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(11), members[1].ID)
	assert.NotNil(t, members[1].Plan)
	assert.Equal(t, 1, lookups, "plans are resolved once per distinct id")
}

func TestGetMemberWithPaymentHistory(t *testing.T) {
	svc, mock, _ := newTestService(t, plansWith(monthlyPlan()))

	mock.ExpectQuery("SELECT (.+) FROM members").WithArgs(int64(10), owner).
		WillReturnRows(memberRow(sqlmock.NewRows(memberRowColumns), 10, "1200.00", "0.00"))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE member_id = \\$1 ORDER BY id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).
			AddRow(100, owner, 10, 1, "500.00", fixedNow, fixedNow).
			AddRow(101, owner, 10, 1, "700.00", fixedNow.Add(-time.Hour), fixedNow))

	result, err := svc.GetMemberWithPaymentHistory(context.Background(), owner, 10)
	require.NoError(t, err)
	require.Len(t, result.PaymentHistory, 2)
	// insertion order, not payment date order
	assert.Equal(t, int64(100), result.PaymentHistory[0].ID)
	assert.Equal(t, int64(101), result.PaymentHistory[1].ID)

	total := decimal.Zero
	for _, p := range result.PaymentHistory {
		total = total.Add(p.Amount)
	}
	assert.True(t, total.Equal(result.CollectedAmount))
}

func TestDeleteMember(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith())
		mock.ExpectExec("DELETE FROM members").WithArgs(int64(10), owner).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, svc.DeleteMember(context.Background(), owner, 10))
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith())
		mock.ExpectExec("DELETE FROM members").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.True(t, apperr.Is(svc.DeleteMember(context.Background(), owner, 10), apperr.KindNotFound))
	})

	t.Run("has payments", func(t *testing.T) {
		svc, mock, _ := newTestService(t, plansWith())
		mock.ExpectExec("DELETE FROM members").WillReturnError(&pq.Error{Code: "23503"})
		assert.True(t, apperr.Is(svc.DeleteMember(context.Background(), owner, 10), apperr.KindConflict))
	})
}
