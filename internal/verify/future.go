package verify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/coder/internal/conversation"
)

// Future is a visual capture running alongside other work.
// Its result is only available after Wait.
type Future struct {
	g   *errgroup.Group
	msg conversation.Message
}

// StartCapture begins capture in the background.
func StartCapture(ctx context.Context, c VisualCapturer, code string) *Future {
	g, ctx := errgroup.WithContext(ctx)
	f := &Future{g: g}
	g.Go(func() error {
		msg, err := c.Capture(ctx, code)
		if err != nil {
			return err
		}
		f.msg = msg
		return nil
	})
	return f
}

// Wait blocks until the capture finishes.
func (f *Future) Wait() (conversation.Message, error) {
	if err := f.g.Wait(); err != nil {
		return conversation.Message{}, err
	}
	return f.msg, nil
}

// Parallel runs main and side concurrently and joins both.
// The first error cancels the shared context.
func Parallel(ctx context.Context, main, side func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return main(ctx) })
	g.Go(func() error { return side(ctx) })
	return g.Wait()
}
