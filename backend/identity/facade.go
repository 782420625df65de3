package identity

import (
	"context"
	"fmt"
	"log/slog"
)

// Result is the outcome of a best-effort provider call. When Fallback is set
// the caller continues with local data only; Reason says why.
type Result[T any] struct {
	OK       bool
	Value    T
	Fallback bool
	Reason   string
}

func success[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

func degraded[T any](reason string) Result[T] {
	return Result[T]{Fallback: true, Reason: reason}
}

// Facade wraps a Provider so that no provider failure reaches the caller.
type Facade struct {
	provider      Provider
	localFallback bool
	log           *slog.Logger
}

func NewFacade(p Provider, localFallback bool) *Facade {
	return &Facade{
		provider:      p,
		localFallback: localFallback,
		log:           slog.Default().With("source", "identity", "provider", p.Name()),
	}
}

func (f *Facade) ProviderName() string {
	return f.provider.Name()
}

// IsUsingLocalFallback is true when no remote provider is configured.
func (f *Facade) IsUsingLocalFallback() bool {
	return f.localFallback
}

func attempt[T any](f *Facade, op string, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("identity provider panicked, falling back to local auth", "op", op, "panic", fmt.Sprint(r))
			res = degraded[T](fmt.Sprintf("%s: provider panic", op))
		}
	}()

	v, err := fn()
	if err != nil {
		f.log.Warn("identity provider call failed, falling back to local auth", "op", op, "error", err.Error())
		return degraded[T](fmt.Sprintf("%s: %v", op, err))
	}
	return success(v)
}

func (f *Facade) CreateUser(ctx context.Context, u NewUser) Result[*User] {
	return attempt(f, "create_user", func() (*User, error) {
		return f.provider.CreateUser(ctx, u)
	})
}

// GetUser reports a nil Value when the provider does not know the user.
func (f *Facade) GetUser(ctx context.Context, username string) Result[*User] {
	return attempt(f, "get_user", func() (*User, error) {
		return f.provider.GetUser(ctx, username)
	})
}

func (f *Facade) InitiateAuthentication(ctx context.Context, username string) Result[*Flow] {
	return attempt(f, "initiate_authentication", func() (*Flow, error) {
		return f.provider.InitiateAuthentication(ctx, username)
	})
}

func (f *Facade) CompleteAuthentication(ctx context.Context, flowID string, patternValid bool) Result[*FlowResult] {
	return attempt(f, "complete_authentication", func() (*FlowResult, error) {
		return f.provider.CompleteAuthentication(ctx, flowID, patternValid)
	})
}

func (f *Facade) StorePattern(ctx context.Context, username, encoded string) Result[struct{}] {
	return attempt(f, "store_pattern", func() (struct{}, error) {
		return struct{}{}, f.provider.StorePattern(ctx, username, encoded)
	})
}

func (f *Facade) GetPattern(ctx context.Context, username string) Result[string] {
	return attempt(f, "get_pattern", func() (string, error) {
		return f.provider.GetPattern(ctx, username)
	})
}
