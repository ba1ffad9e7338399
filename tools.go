//go:build tools

// Package tools pins development tools in go.mod so every checkout lints
// with the same golangci-lint release. `make install-tools` installs them,
// `make lint` runs them with .golangci.yml.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
)
