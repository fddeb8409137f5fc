package passwordless

import (
	"context"

	"github.com/uptrace/bun"
)

// PreSaveHook runs against a pending record before it is written.
// Returning an error aborts the save and the surrounding transaction.
type PreSaveHook[T any] interface {
	BeforeSave(ctx context.Context, tx bun.IDB, record T) error
}

// PreSaveHookFunc adapts a function to the PreSaveHook interface.
type PreSaveHookFunc[T any] func(ctx context.Context, tx bun.IDB, record T) error

// BeforeSave implements PreSaveHook.
func (f PreSaveHookFunc[T]) BeforeSave(ctx context.Context, tx bun.IDB, record T) error {
	if f == nil {
		return nil
	}
	return f(ctx, tx, record)
}

// SaveHooks is an ordered registry of pre-save hooks for one entity type.
type SaveHooks[T any] struct {
	hooks []PreSaveHook[T]
}

// Register appends hooks, they run in registration order.
func (h *SaveHooks[T]) Register(hooks ...PreSaveHook[T]) {
	for _, hook := range hooks {
		if hook != nil {
			h.hooks = append(h.hooks, hook)
		}
	}
}

// Len returns the number of registered hooks.
func (h *SaveHooks[T]) Len() int {
	if h == nil {
		return 0
	}
	return len(h.hooks)
}

// Run executes every hook, stopping at the first error.
func (h *SaveHooks[T]) Run(ctx context.Context, tx bun.IDB, record T) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.hooks {
		if err := hook.BeforeSave(ctx, tx, record); err != nil {
			return err
		}
	}
	return nil
}
