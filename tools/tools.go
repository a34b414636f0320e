//go:build tools

package tools

// Tracks the goose CLI so `go run github.com/pressly/goose/v3/cmd/goose`
// uses the same version as the embedded migrations.
// Run `go mod tidy` after adding/removing tools here.

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
