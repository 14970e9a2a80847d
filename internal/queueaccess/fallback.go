package queueaccess

import (
	"fmt"

	"fieldsync/internal/ipc"
	"fieldsync/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// store access. Both processes share the store, so either path sees the same
// records.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openEngine func() (*queue.Engine, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openEngine == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	engine, err := openEngine()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(engine),
		close:  engine.Store().Close,
	}, nil
}
