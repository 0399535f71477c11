// Package testing groups test helpers for snippetd.
//
// # Mocks
//
// The mocks subpackage provides testify-based mocks for the interfaces the
// Sheets client depends on:
//   - HTTP transport and request execution (executor.Transport, sheets.Executor)
//   - Token persistence (tokenstore.Store)
//   - OAuth refresh (sheets.TokenRefresher)
//
// # Containers
//
// The containers subpackage starts a disposable PostgreSQL instance through
// testcontainers for tests built with the integration tag.
//
//	import (
//		"github.com/easeware/snippetd/testing/containers"
//		"github.com/easeware/snippetd/testing/mocks"
//	)
package testing
