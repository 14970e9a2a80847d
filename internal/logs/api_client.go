package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fieldsync/internal/api"
)

// ErrAPIUnavailable reports that no daemon HTTP API is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// MessageClient reads the daemon message hub over HTTP.
type MessageClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

// MessageQuery mirrors the /api/messages query parameters.
type MessageQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	Tail   bool
}

// NewMessageClient returns nil when bind is empty.
func NewMessageClient(bind, token string) (*MessageClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path, base.RawQuery, base.Fragment = "", "", ""

	return &MessageClient{
		base:  base,
		token: strings.TrimSpace(token),
		// Follow requests block server-side; callers bound them with ctx.
		http: &http.Client{},
	}, nil
}

// Fetch returns messages after q.Since.
func (c *MessageClient) Fetch(ctx context.Context, q MessageQuery) (api.MessagesResponse, error) {
	if c == nil {
		return api.MessagesResponse{}, ErrAPIUnavailable
	}

	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/messages", RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return api.MessagesResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.MessagesResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return api.MessagesResponse{}, fmt.Errorf("api messages returned status %d", resp.StatusCode)
	}

	var payload api.MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.MessagesResponse{}, fmt.Errorf("decode messages: %w", err)
	}
	return payload, nil
}

// IsAPIUnavailable reports whether err means the daemon API cannot be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
