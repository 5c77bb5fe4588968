package task

import (
	"context"

	"github.com/cuemby/warren/internal/store/kv"
)

// Handler executes one task kind and returns the kv ops (if any) that
// must commit atomically with the task's removal, per spec.md §4.8.
type Handler interface {
	Kind() Kind
	Handle(ctx context.Context, t Task) ([]kv.Op, error)
}
