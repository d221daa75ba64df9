package reconcile

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// jitterFraction is the maximum random offset applied to the reconcile
// interval, as a fraction of the interval, to keep multiple instances from
// hitting the source and store simultaneously.
const jitterFraction = 0.1

// Coordinator runs the runner on a fixed interval until stopped. The serve
// command owns one; one-shot reconciles call the runner directly.
type Coordinator struct {
	runner   *Runner
	interval time.Duration

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewCoordinator creates a coordinator reconciling every interval.
func NewCoordinator(runner *Runner, interval time.Duration) *Coordinator {
	return &Coordinator{
		runner:   runner,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// withJitter returns the interval with a random offset applied.
func (c *Coordinator) withJitter() time.Duration {
	jitter := time.Duration(float64(c.interval) * jitterFraction)
	if jitter <= 0 {
		return c.interval
	}
	//nolint:gosec // G404: non-cryptographic randomness is sufficient for interval jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return c.interval + offset
}

// Start runs an immediate reconcile pass and then one per interval. It blocks
// until the context is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "Starting reconcile coordinator", "interval", c.interval)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.InfoContext(ctx, "Reconcile coordinator shut down")
	}()

	ticker := time.NewTicker(c.withJitter())
	defer ticker.Stop()

	c.runOnce(runCtx)

	for {
		select {
		case <-ticker.C:
			c.runOnce(runCtx)
			ticker.Reset(c.withJitter())
		case <-runCtx.Done():
			return nil
		}
	}
}

// Stop cancels the coordinator and waits for the current pass to finish.
func (c *Coordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping reconcile coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// runOnce executes one pass. Faults are logged and do not stop the loop; the
// next tick tries again.
func (c *Coordinator) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.runner.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "Reconcile run failed", "error", err)
	}
}
