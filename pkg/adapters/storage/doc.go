// Package storage provides run store implementations.
//
// Implementations:
//   - redis: JSON values with TTL, per-session listing via SCAN
//   - memory: In-memory for tests and the memory backend
package storage
