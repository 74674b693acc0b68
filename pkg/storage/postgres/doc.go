// Package postgres holds the infrastructure clients shared by the gymledger
// services.
//
//   - ConnectionManager: primary pool for ledger writes, round-robin read
//     replicas for dashboard aggregation, periodic pool stats
//   - RunMigrations: versioned schema migrations applied in transactions
//   - RedisClient: the L2 plan cache and the distributed rate limiter
//   - S3Client: monthly dashboard snapshot archive
//
// IsUniqueViolation and IsForeignKeyViolation map lib/pq error codes so the
// services can translate them into apperr kinds.
package postgres
