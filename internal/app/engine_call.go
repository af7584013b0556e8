package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// EngineCall runs fn with a deadline and gives up with domain.ErrTimeout once
// it passes, even if fn ignores its context. A result that arrives after the
// caller gave up is passed to release so the handle does not leak.
func EngineCall[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error), release func(T)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		cancel()
		if res.err != nil {
			return res.v, classify(op, res.err)
		}
		return res.v, nil
	case <-ctx.Done():
		err := ctx.Err()
		go func() {
			defer cancel()
			late := <-ch
			if late.err == nil && release != nil {
				log.Warn().Str("module", "app.engine").Str("op", op).Msg("releasing late engine result")
				release(late.v)
			}
		}()
		var zero T
		return zero, classify(op, err)
	}
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, domain.ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
