package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying re-invokes Worker with exponential backoff. Errors wrapped with Permanent are
// not retried.
type Retrying struct {
	Worker          Worker
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (r Retrying) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if r.Worker == nil {
		return nil, errors.New("retrying worker: no worker")
	}
	eb := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		eb.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		eb.MaxInterval = r.MaxInterval
	}
	// Bounded by MaxRetries and ctx, not by elapsed time.
	eb.MaxElapsedTime = 0
	eb.Reset()

	var out any
	op := func() error {
		v, err := r.Worker.Invoke(ctx, input)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.MaxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Retrying) WithTools(tools []Tool) Worker {
	r.Worker = Bind(r.Worker, tools)
	return r
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
