// Package backend builds the document store selected by configuration,
// together with the optional AMQP change feed that keeps several
// processes sharing one database in sync.
package backend

import (
	"context"

	"moneytracker/internal/amqp"
	"moneytracker/internal/docstore"
)

// CleanupFunc releases the resources of a backend
type CleanupFunc func() error

// ReadyFunc reports whether the store can serve requests
type ReadyFunc func(ctx context.Context) error

// BackendResult contains the store, the optional feed and their cleanup
type BackendResult struct {
	Store docstore.Store
	// Feed is nil when AMQP is disabled or unreachable.
	Feed    *amqp.Client
	Ready   ReadyFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// pinger is implemented by stores that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}
