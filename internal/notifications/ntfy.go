package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "Fieldsync-Go/0.1.0"

type ntfyPayload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

// NewNtfy posts operator-relevant messages to an ntfy topic URL. Routine
// successes are not pushed.
func NewNtfy(endpoint string, client *http.Client) Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &ntfyService{endpoint: endpoint, client: client}
}

func (n *ntfyService) Publish(ctx context.Context, msg Message) error {
	data, ok := ntfyFor(msg)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func ntfyFor(msg Message) (ntfyPayload, bool) {
	switch msg.Type {
	case TypeLocationStale:
		return ntfyPayload{
			title:   "Fieldsync - Location Refresh Needed",
			message: fmt.Sprintf("Order %s needs a fresh location before it can be sent", msg.SubmissionID),
			tags:    []string{"fieldsync", "location", "stale"},
		}, true
	case TypeSubmissionFailed:
		if msg.Retrying {
			return ntfyPayload{}, false
		}
		errText := strings.TrimSpace(msg.Error)
		if errText == "" {
			errText = "unknown"
		}
		return ntfyPayload{
			title:    "Fieldsync - Order Failed",
			message:  fmt.Sprintf("Order %s was not delivered: %s", msg.SubmissionID, errText),
			tags:     []string{"fieldsync", "order", "failed"},
			priority: "high",
		}, true
	case TypeQueueProcessed:
		if msg.Results == nil || (msg.Results.Failed == 0 && msg.Results.Stale == 0) {
			return ntfyPayload{}, false
		}
		r := msg.Results
		return ntfyPayload{
			title: "Fieldsync - Queue Processed (needs attention)",
			message: fmt.Sprintf("%d processed: %d delivered, %d failed, %d waiting for location",
				r.Processed, r.Succeeded, r.Failed, r.Stale),
			tags: []string{"fieldsync", "queue", "completed"},
		}, true
	default:
		return ntfyPayload{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data ntfyPayload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
