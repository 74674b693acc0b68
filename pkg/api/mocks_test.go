package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/auth"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/expenses"
	"github.com/platinummonkey/gymledger/pkg/ledger"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/reports"
)

const (
	testOwner = int64(7)
	testToken = "token-for-7"
)

type mockAuthenticator struct{}

func (mockAuthenticator) Authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	if token != testToken {
		return nil, apperr.Unauthorized("invalid token")
	}
	return &auth.Principal{OwnerID: testOwner}, nil
}

type mockPlans struct {
	createPlanFunc func(ctx context.Context, ownerID int64, req *catalog.CreatePlanRequest) (*catalog.Plan, error)
	getPlanFunc    func(ctx context.Context, id int64) (*catalog.Plan, error)
	listPlansFunc  func(ctx context.Context, ownerID int64) ([]*catalog.Plan, error)
}

func (m *mockPlans) CreatePlan(ctx context.Context, ownerID int64, req *catalog.CreatePlanRequest) (*catalog.Plan, error) {
	return m.createPlanFunc(ctx, ownerID, req)
}

func (m *mockPlans) GetPlan(ctx context.Context, id int64) (*catalog.Plan, error) {
	return m.getPlanFunc(ctx, id)
}

func (m *mockPlans) ListPlans(ctx context.Context, ownerID int64) ([]*catalog.Plan, error) {
	return m.listPlansFunc(ctx, ownerID)
}

type mockLedger struct {
	createMemberFunc  func(ctx context.Context, ownerID int64, req *ledger.CreateMemberRequest) (*ledger.MemberPayment, error)
	getMemberFunc     func(ctx context.Context, ownerID, id int64) (*ledger.Member, error)
	listMembersFunc   func(ctx context.Context, ownerID int64) ([]*ledger.Member, error)
	historyFunc       func(ctx context.Context, ownerID, id int64) (*ledger.MemberWithHistory, error)
	deleteMemberFunc  func(ctx context.Context, ownerID, id int64) error
	recordPaymentFunc func(ctx context.Context, ownerID int64, req *ledger.RecordPaymentRequest) (*ledger.MemberPayment, error)
	reconcileFunc     func(ctx context.Context, ownerID int64) ([]*ledger.Discrepancy, error)
}

func (m *mockLedger) CreateMember(ctx context.Context, ownerID int64, req *ledger.CreateMemberRequest) (*ledger.MemberPayment, error) {
	return m.createMemberFunc(ctx, ownerID, req)
}

func (m *mockLedger) GetMember(ctx context.Context, ownerID, id int64) (*ledger.Member, error) {
	return m.getMemberFunc(ctx, ownerID, id)
}

func (m *mockLedger) ListMembers(ctx context.Context, ownerID int64) ([]*ledger.Member, error) {
	return m.listMembersFunc(ctx, ownerID)
}

func (m *mockLedger) GetMemberWithPaymentHistory(ctx context.Context, ownerID, id int64) (*ledger.MemberWithHistory, error) {
	return m.historyFunc(ctx, ownerID, id)
}

func (m *mockLedger) DeleteMember(ctx context.Context, ownerID, id int64) error {
	return m.deleteMemberFunc(ctx, ownerID, id)
}

func (m *mockLedger) RecordPayment(ctx context.Context, ownerID int64, req *ledger.RecordPaymentRequest) (*ledger.MemberPayment, error) {
	return m.recordPaymentFunc(ctx, ownerID, req)
}

func (m *mockLedger) Reconcile(ctx context.Context, ownerID int64) ([]*ledger.Discrepancy, error) {
	return m.reconcileFunc(ctx, ownerID)
}

type mockExpenses struct {
	createExpenseFunc func(ctx context.Context, ownerID int64, req *expenses.CreateExpenseRequest) (*expenses.Expense, error)
	listExpensesFunc  func(ctx context.Context, ownerID int64) ([]*expenses.Expense, error)
}

func (m *mockExpenses) CreateExpense(ctx context.Context, ownerID int64, req *expenses.CreateExpenseRequest) (*expenses.Expense, error) {
	return m.createExpenseFunc(ctx, ownerID, req)
}

func (m *mockExpenses) ListExpenses(ctx context.Context, ownerID int64) ([]*expenses.Expense, error) {
	return m.listExpensesFunc(ctx, ownerID)
}

type mockDashboards struct {
	dashboardFunc func(ctx context.Context, ownerID int64, now time.Time) (*reports.Dashboard, error)
}

func (m *mockDashboards) Dashboard(ctx context.Context, ownerID int64, now time.Time) (*reports.Dashboard, error) {
	return m.dashboardFunc(ctx, ownerID, now)
}

type testServer struct {
	plans      *mockPlans
	ledger     *mockLedger
	expenses   *mockExpenses
	dashboards *mockDashboards
	logs       *bytes.Buffer
	server     *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		plans:      &mockPlans{},
		ledger:     &mockLedger{},
		expenses:   &mockExpenses{},
		dashboards: &mockDashboards{},
		logs:       &bytes.Buffer{},
	}
	ts.server = NewServer(Options{
		Plans:         ts.plans,
		Members:       ts.ledger,
		Expenses:      ts.expenses,
		Dashboards:    ts.dashboards,
		Authenticator: mockAuthenticator{},
		Logger:        observability.NewLogger(observability.InfoLevel, ts.logs),
		CORSOrigins:   []string{"*"},
		MaxBodyBytes:  4096,
	})
	return ts
}

// do sends an authenticated request
func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
