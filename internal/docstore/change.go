package docstore

import (
	"context"
	"time"
)

type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one committed write.
type Change struct {
	Collection string
	UserID     string
	DocumentID string
	Op         Op
	At         time.Time
}

// ChangePublisher forwards committed changes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c Change) error
}
