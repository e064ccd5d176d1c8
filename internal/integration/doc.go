// Package integration holds container-backed tests for the database and cache
// components. Run with go test ./internal/integration (skipped under -short).
package integration
