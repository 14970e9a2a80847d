package ipc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call issues method and waits for the reply or ctx, whichever comes first.
// An abandoned call is left to complete in the background.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	pending := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-pending.Done:
		return done.Error
	}
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessQueue runs a background pass and waits for its summary.
func (c *Client) ProcessQueue(ctx context.Context) (*ProcessQueueResponse, error) {
	var resp ProcessQueueResponse
	if err := c.call(ctx, "ProcessQueue", ProcessQueueRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SkipWaiting interrupts the daemon's current backoff.
func (c *Client) SkipWaiting(ctx context.Context) (*SkipWaitingResponse, error) {
	var resp SkipWaitingResponse
	if err := c.call(ctx, "SkipWaiting", SkipWaitingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns submissions optionally filtered by statuses.
func (c *Client) QueueList(ctx context.Context, statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.call(ctx, "QueueList", QueueListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single submission.
func (c *Client) QueueDescribe(ctx context.Context, id string) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	if err := c.call(ctx, "QueueDescribe", QueueDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueStats returns queue counters.
func (c *Client) QueueStats(ctx context.Context) (*QueueStatsResponse, error) {
	var resp QueueStatsResponse
	if err := c.call(ctx, "QueueStats", QueueStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry returns failed submissions to pending.
func (c *Client) QueueRetry(ctx context.Context, ids []string) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	if err := c.call(ctx, "QueueRetry", QueueRetryRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove deletes specific submissions.
func (c *Client) QueueRemove(ctx context.Context, ids []string) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	if err := c.call(ctx, "QueueRemove", QueueRemoveRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes every submission.
func (c *Client) QueueClear(ctx context.Context, force bool) (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.call(ctx, "QueueClear", QueueClearRequest{Force: force}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateLocation attaches a fresh location reading to a submission.
func (c *Client) UpdateLocation(ctx context.Context, req UpdateLocationRequest) (*UpdateLocationResponse, error) {
	var resp UpdateLocationResponse
	if err := c.call(ctx, "UpdateLocation", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Messages long-polls the daemon message hub.
func (c *Client) Messages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	var resp MessagesResponse
	if err := c.call(ctx, "Messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth(ctx context.Context) (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call(ctx, "DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
