// Package logstream follows the daemon message hub, preferring the HTTP API
// and falling back to the unix socket.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logs"
	"fieldsync/internal/notifications"
)

const defaultLimit = 100

// ErrNoSource is returned when neither transport is available.
var ErrNoSource = errors.New("no message source available")

// Source is a fallback message transport.
type Source interface {
	Messages(ctx context.Context, since uint64, limit int, follow bool) (api.MessagesResponse, error)
}

// IPCSource adapts the daemon socket to Source. The connection is opened on
// first use.
type IPCSource struct {
	Dial func() (*ipc.Client, error)
	// Wait bounds each server-side follow.
	Wait time.Duration

	client *ipc.Client
}

// Messages long-polls the hub over the socket.
func (s *IPCSource) Messages(ctx context.Context, since uint64, limit int, follow bool) (api.MessagesResponse, error) {
	if s.client == nil {
		if s.Dial == nil {
			return api.MessagesResponse{}, ErrNoSource
		}
		client, err := s.Dial()
		if err != nil {
			return api.MessagesResponse{}, err
		}
		s.client = client
	}
	resp, err := s.client.Messages(ctx, ipc.MessagesRequest{
		Since:      since,
		Limit:      limit,
		Follow:     follow,
		WaitMillis: int(s.Wait / time.Millisecond),
	})
	if err != nil {
		return api.MessagesResponse{}, err
	}
	return *resp, nil
}

// Close releases the socket connection if one was opened.
func (s *IPCSource) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Options controls stream behavior.
type Options struct {
	Since  uint64
	Limit  int
	Follow bool
	// RequireAPI disables the socket fallback.
	RequireAPI bool
}

// Stream delivers messages to onMessage until ctx ends, or after the first
// batch when Follow is off. It returns the last cursor seen. Cancellation is
// not an error.
func Stream(
	ctx context.Context,
	apiClient *logs.MessageClient,
	fallback Source,
	opts Options,
	onMessage func(notifications.Message) error,
) (uint64, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	var apiErr error
	if apiClient != nil || opts.RequireAPI {
		cursor, delivered, err := run(ctx, apiFetcher(apiClient), opts, onMessage)
		if err == nil || delivered || opts.RequireAPI || !logs.IsAPIUnavailable(err) {
			return cursor, err
		}
		apiErr = err
	}
	if fallback == nil {
		if apiErr != nil {
			return opts.Since, apiErr
		}
		return opts.Since, ErrNoSource
	}
	cursor, _, err := run(ctx, fallback.Messages, opts, onMessage)
	return cursor, err
}

type fetchFunc func(ctx context.Context, since uint64, limit int, follow bool) (api.MessagesResponse, error)

func apiFetcher(client *logs.MessageClient) fetchFunc {
	return func(ctx context.Context, since uint64, limit int, follow bool) (api.MessagesResponse, error) {
		return client.Fetch(ctx, logs.MessageQuery{Since: since, Limit: limit, Follow: follow})
	}
}

func run(ctx context.Context, fetch fetchFunc, opts Options, onMessage func(notifications.Message) error) (uint64, bool, error) {
	cursor := opts.Since
	delivered := false
	for {
		resp, err := fetch(ctx, cursor, opts.Limit, opts.Follow)
		if err != nil {
			if ctx.Err() != nil {
				return cursor, delivered, nil
			}
			return cursor, delivered, fmt.Errorf("fetch messages: %w", err)
		}
		for _, msg := range resp.Messages {
			if onMessage != nil {
				if err := onMessage(msg); err != nil {
					return cursor, true, err
				}
			}
			delivered = true
		}
		if resp.Next > cursor {
			cursor = resp.Next
		}
		if !opts.Follow || ctx.Err() != nil {
			return cursor, delivered, nil
		}
	}
}
