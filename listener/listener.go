package listener

import "context"

// Listener is a serving surface for the doorman API. Start blocks until
// the context is cancelled or serving fails; Stop is safe to call more
// than once.
type Listener interface {
	Addr() string
	Start(ctx context.Context) error
	Stop() error
	Type() string
}
