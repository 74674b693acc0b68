// Package ledger owns a member's financial state and the payments recorded
// against it.
//
// # Invariants
//
// For every committed member:
//
//	dueAmount = admissionAmount + plan.amount - collectedAmount - discount   (at creation)
//	sum(payments.amount) = collectedAmount
//	dueAmount >= 0, only ever decreasing
//
// CreateMember writes the member and its admission payment in one
// transaction. RecordPayment validates against the balance it read, then
// applies a conditional decrement (due_amount >= amount) and the payment
// insert in one transaction; a concurrent payment that already consumed the
// balance makes the decrement match no row and the request fails with
// InvalidState.
//
// Reconcile reports members whose collected amount disagrees with their
// payments. It should always be empty.
package ledger
