package adapter

import "context"

// Dialer opens a command session to a device. Failures are returned as
// *domain.ConnectionError.
type Dialer interface {
	Dial(ctx context.Context, target string) (Session, error)
}

// Session runs CLI commands on a connected device. Failures are returned as
// *domain.CommandError.
type Session interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, target string) (Session, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context, target string) (Session, error) {
	return f(ctx, target)
}
