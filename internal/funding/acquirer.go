package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Acquirer represents the external party money enters from or leaves to.
// The ledger does not model it beyond an authorization decision.
type Acquirer interface {
	AuthorizeFunding(ctx context.Context, input Authorization) (AuthorizationDecision, error)
	AuthorizePayout(ctx context.Context, input Authorization) (AuthorizationDecision, error)
}

// Voider is implemented by acquirers that can cancel an approved
// authorization the ledger could not apply.
type Voider interface {
	VoidAuthorization(ctx context.Context, reference string) error
}

// AuthorizationDecision captures the acquirer response.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// Approved reports whether the acquirer accepted the movement.
func (d AuthorizationDecision) Approved() bool {
	return d.Status == StatusApproved
}

// StatusApproved is the decision status that lets a movement proceed.
const StatusApproved = "approved"

// Authorization describes the movement submitted for approval.
type Authorization struct {
	WalletID string
	Amount   decimal.Decimal
	Currency string
}

// StaticAcquirer approves every request with a synthetic reference.
type StaticAcquirer struct{}

// AuthorizeFunding approves the funding request.
func (StaticAcquirer) AuthorizeFunding(_ context.Context, _ Authorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: StatusApproved}, nil
}

// AuthorizePayout approves the withdrawal request.
func (StaticAcquirer) AuthorizePayout(_ context.Context, _ Authorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: StatusApproved}, nil
}

// VoidAuthorization accepts every void; static approvals hold nothing.
func (StaticAcquirer) VoidAuthorization(_ context.Context, _ string) error {
	return nil
}
