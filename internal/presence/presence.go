// Package presence mirrors live room membership into a shared store so that
// occupancy can be inspected across relay instances.
package presence

import "context"

// Store records which sessions are currently in which rooms.
type Store interface {
	Join(ctx context.Context, roomID, sessionID string) error
	Leave(ctx context.Context, roomID, sessionID string) error
	Count(ctx context.Context, roomID string) (int64, error)
	Close() error
}

// Noop is used when no shared store is configured.
type Noop struct{}

func (Noop) Join(context.Context, string, string) error { return nil }
func (Noop) Leave(context.Context, string, string) error { return nil }
func (Noop) Count(context.Context, string) (int64, error) { return 0, nil }
func (Noop) Close() error { return nil }
