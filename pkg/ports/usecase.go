package ports

import "context"

// UseCase is a pure Request → Response business operation. Implementations
// must be deterministic given identical dependency-call outcomes: no direct
// wall-clock or random access except through injected, replay-consistent
// collaborators.
type UseCase[Req, Resp any] interface {
	Execute(ctx context.Context, req Req) (Resp, error)
}

// UseCaseFunc adapts a function to UseCase.
type UseCaseFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Execute calls f(ctx, req).
func (f UseCaseFunc[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}
