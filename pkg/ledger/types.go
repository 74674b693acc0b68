package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/gymledger/pkg/catalog"
)

// Member is a member's record and financial state. Between payments
// CollectedAmount + DueAmount + Discount == AdmissionAmount + plan amount.
type Member struct {
	ID              int64           `json:"id"`
	CreatedBy       int64           `json:"createdBy"`
	Name            string          `json:"name"`
	Contact         string          `json:"contact"`
	Email           string          `json:"email"`
	Gender          string          `json:"gender"`
	Address         string          `json:"address"`
	Batch           string          `json:"batch"`
	PlanID          int64           `json:"planId"`
	Plan            *catalog.Plan   `json:"plan,omitempty"`
	JoinDate        time.Time       `json:"joinDate"`
	AdmissionAmount decimal.Decimal `json:"admissionAmount"`
	Discount        decimal.Decimal `json:"discount"`
	CollectedAmount decimal.Decimal `json:"collectedAmount"`
	DueAmount       decimal.Decimal `json:"dueAmount"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Payment is an immutable payment against a member
type Payment struct {
	ID          int64           `json:"id"`
	CreatedBy   int64           `json:"createdBy"`
	MemberID    int64           `json:"memberId"`
	PlanID      int64           `json:"planId"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// MemberPayment is the result of a ledger write
type MemberPayment struct {
	Member  *Member  `json:"member"`
	Payment *Payment `json:"payment"`
}

// MemberWithHistory is a member and its payments in insertion order
type MemberWithHistory struct {
	*Member
	PaymentHistory []*Payment `json:"paymentHistory"`
}

// Discrepancy is a member whose collected amount disagrees with the sum
// of its payments
type Discrepancy struct {
	MemberID      int64           `json:"memberId"`
	CreatedBy     int64           `json:"createdBy"`
	Collected     decimal.Decimal `json:"collectedAmount"`
	PaymentsTotal decimal.Decimal `json:"paymentsTotal"`
	Difference    decimal.Decimal `json:"difference"`
}

// CreateMemberRequest is the body of POST /member. Amounts are pointers so
// a missing field can be told apart from zero.
type CreateMemberRequest struct {
	Name            string           `json:"name"`
	Contact         string           `json:"contact"`
	Email           string           `json:"email"`
	Gender          string           `json:"gender"`
	Batch           string           `json:"batch"`
	Address         string           `json:"address"`
	Plan            int64            `json:"plan"`
	JoinDate        string           `json:"joinDate"`
	AdmissionAmount *decimal.Decimal `json:"admissionAmount"`
	Discount        *decimal.Decimal `json:"discount"`
	CollectedAmount *decimal.Decimal `json:"collectedAmount"`
}

// RecordPaymentRequest is the body of POST /payment
type RecordPaymentRequest struct {
	MemberID    int64           `json:"memberId"`
	Plan        int64           `json:"plan"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"paymentDate"`
}

// Service is the member ledger and payment recorder
type Service interface {
	CreateMember(ctx context.Context, ownerID int64, req *CreateMemberRequest) (*MemberPayment, error)
	GetMember(ctx context.Context, ownerID, id int64) (*Member, error)
	ListMembers(ctx context.Context, ownerID int64) ([]*Member, error)
	GetMemberWithPaymentHistory(ctx context.Context, ownerID, id int64) (*MemberWithHistory, error)
	DeleteMember(ctx context.Context, ownerID, id int64) error
	RecordPayment(ctx context.Context, ownerID int64, req *RecordPaymentRequest) (*MemberPayment, error)
	Reconcile(ctx context.Context, ownerID int64) ([]*Discrepancy, error)
}
