package session

import (
	"context"
	"fmt"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/orchestrator"
)

// DefaultIdleTimeout closes a session whose transport has delivered no
// frames for this long, in case the transport layer itself never detects
// the disconnect.
const DefaultIdleTimeout = 10 * time.Minute

// BindTransport pumps raw frames from a transport's receive channel into
// sess until the channel closes or ctx is cancelled, resetting an idle
// timer on every frame so a silently-dead transport still closes the
// session eventually. It blocks for the lifetime of the binding; callers
// typically run it in its own goroutine per connection.
func BindTransport(ctx context.Context, sess *orchestrator.Session, frames <-chan []byte, idleTimeout time.Duration) error {
	if sess == nil {
		return fmt.Errorf("session: sess is required")
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			sess.ReportTransportClosed(ctx)
			return ctx.Err()
		case <-sess.Done():
			return nil
		case <-idle.C:
			sess.ReportIdleTimeout(ctx)
			return nil
		case frame, ok := <-frames:
			if !ok {
				sess.ReportTransportClosed(ctx)
				return nil
			}
			idle.Reset(idleTimeout)
			if err := sess.PushTransportFrame(ctx, frame); err != nil {
				continue
			}
		}
	}
}
