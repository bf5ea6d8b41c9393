package pipeline

import (
	"context"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// ProxyRepository routes every repository method through Call so the
// substrate records and retries them.
type ProxyRepository[T any] struct {
	inner ports.Repository[T]
	name  string
	opts  ports.ActivityOptions
}

// NewProxyRepository wraps inner. Activity names are prefixed with name.
func NewProxyRepository[T any](name string, inner ports.Repository[T], opts ports.ActivityOptions) *ProxyRepository[T] {
	return &ProxyRepository[T]{inner: inner, name: name, opts: opts}
}

func (r *ProxyRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	return CallWithOptions(ctx, r.name+".get", r.opts, func(ctx context.Context) (*T, error) {
		return r.inner.Get(ctx, id)
	})
}

func (r *ProxyRepository[T]) Save(ctx context.Context, id string, entity T) error {
	_, err := CallWithOptions(ctx, r.name+".save", r.opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.Save(ctx, id, entity)
	})
	return err
}

func (r *ProxyRepository[T]) List(ctx context.Context) ([]T, error) {
	return CallWithOptions(ctx, r.name+".list", r.opts, func(ctx context.Context) ([]T, error) {
		return r.inner.List(ctx)
	})
}

func (r *ProxyRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	return CallWithOptions(ctx, r.name+".delete", r.opts, func(ctx context.Context) (bool, error) {
		return r.inner.Delete(ctx, id)
	})
}

// GenerateID calls through unrecorded; use NewID inside a run.
func (r *ProxyRepository[T]) GenerateID() string {
	return r.inner.GenerateID()
}

// NewID generates an identifier as a recorded activity, so a replayed run
// sees the same id.
func (r *ProxyRepository[T]) NewID(ctx context.Context) (string, error) {
	return CallWithOptions(ctx, r.name+".generate_id", r.opts, func(context.Context) (string, error) {
		return r.inner.GenerateID(), nil
	})
}

// ProxyPoller makes each poll a recorded activity.
type ProxyPoller struct {
	inner ports.Poller
	opts  ports.ActivityOptions
}

// NewProxyPoller wraps inner.
func NewProxyPoller(inner ports.Poller, opts ports.ActivityOptions) *ProxyPoller {
	return &ProxyPoller{inner: inner, opts: opts}
}

// PollActivity polls as an activity. The error is non-nil only when the
// substrate itself failed the call (cancellation, replay divergence); poll
// failures are reported in the result.
func (p *ProxyPoller) PollActivity(ctx context.Context, cfg domain.PollingConfig) (domain.PollingResult, error) {
	return CallWithOptions(ctx, "poller.poll", p.opts, func(ctx context.Context) (domain.PollingResult, error) {
		return p.inner.Poll(ctx, cfg), nil
	})
}

// Poll implements ports.Poller. Substrate failures are folded into an
// unsuccessful result.
func (p *ProxyPoller) Poll(ctx context.Context, cfg domain.PollingConfig) domain.PollingResult {
	res, err := p.PollActivity(ctx, cfg)
	if err != nil {
		return domain.PollingResult{Success: false, Error: err.Error()}
	}
	return res
}

// ProxyNewDataHandler makes each handler invocation a recorded activity.
type ProxyNewDataHandler struct {
	inner ports.NewDataHandler
	opts  ports.ActivityOptions
}

// NewProxyNewDataHandler wraps inner.
func NewProxyNewDataHandler(inner ports.NewDataHandler, opts ports.ActivityOptions) *ProxyNewDataHandler {
	return &ProxyNewDataHandler{inner: inner, opts: opts}
}

func (h *ProxyNewDataHandler) HandleNewData(ctx context.Context, endpointID string, previous, current []byte, contentHash string) (*domain.Acknowledgement, error) {
	return CallWithOptions(ctx, "handler.handle_new_data", h.opts, func(ctx context.Context) (*domain.Acknowledgement, error) {
		return h.inner.HandleNewData(ctx, endpointID, previous, current, contentHash)
	})
}
