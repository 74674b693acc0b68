// Package reports computes the dashboard.
//
// All figures cover the UTC calendar month containing "now":
//
//	revenueThisMonth          sum of payments dated in the month
//	totalAdmissionsThisMonth  members who joined in the month
//	netDueAmount              sum of every member's due (a snapshot, not month scoped)
//	expiringSubscriptions     members whose plan expires in the month's last days
//	expense                   sum of expenses dated in the month
//
// Archiver stores monthly snapshots in object storage for the reconciler's
// scheduled job.
package reports
