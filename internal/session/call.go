package session

import "context"

// Call is a handle on one submitted edit request.
type Call struct {
	session    *Session
	generation uint64
	done       chan struct{}
}

// Done is closed once the editor has returned, whether or not its result
// was committed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Generation is the token the call was started with.
func (c *Call) Generation() uint64 {
	return c.generation
}

// Cancel abandons the call if it is still the session's current request.
func (c *Call) Cancel() bool {
	return c.session.cancelGeneration(c.generation)
}

// Wait blocks until the call finishes or ctx ends and returns the session
// state at that point.
func (c *Call) Wait(ctx context.Context) (State, error) {
	select {
	case <-c.done:
		return c.session.Snapshot(), nil
	case <-ctx.Done():
		return c.session.Snapshot(), ctx.Err()
	}
}
