package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/ipc"
	"fieldsync/internal/queue"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	// Source names the backing: "daemon" or "store".
	Source() string
	Stats(ctx context.Context) (api.QueueStats, error)
	List(ctx context.Context, statuses []string) ([]api.Submission, error)
	Describe(ctx context.Context, id string) (*api.Submission, error)
	Retry(ctx context.Context, ids []string) (int, error)
	Remove(ctx context.Context, ids []string) (int, error)
	// Clear never returns api.ErrConfirmationRequired; callers inspect
	// ClearResult.RequiresConfirmation instead.
	Clear(ctx context.Context, force bool) (api.ClearResult, error)
	// UpdateLocation reports stale=true when the new reading is already too old.
	UpdateLocation(ctx context.Context, id string, loc queue.Location) (item api.Submission, stale bool, err error)
	Health(ctx context.Context) (queue.DatabaseHealth, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct store access.
func NewStoreAccess(engine *queue.Engine) Access {
	return &storeAccess{engine: engine, service: api.NewQueueService(engine)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Source() string { return "daemon" }

func (a *ipcAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	resp, err := a.client.QueueStats(ctx)
	if err != nil {
		return api.QueueStats{}, err
	}
	return resp.Stats, nil
}

func (a *ipcAccess) List(ctx context.Context, statuses []string) ([]api.Submission, error) {
	resp, err := a.client.QueueList(ctx, statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Describe(ctx context.Context, id string) (*api.Submission, error) {
	resp, err := a.client.QueueDescribe(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Found {
		return nil, nil
	}
	return &resp.Item, nil
}

func (a *ipcAccess) Retry(ctx context.Context, ids []string) (int, error) {
	resp, err := a.client.QueueRetry(ctx, ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Remove(ctx context.Context, ids []string) (int, error) {
	resp, err := a.client.QueueRemove(ctx, ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Clear(ctx context.Context, force bool) (api.ClearResult, error) {
	resp, err := a.client.QueueClear(ctx, force)
	if err != nil {
		return api.ClearResult{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) UpdateLocation(ctx context.Context, id string, loc queue.Location) (api.Submission, bool, error) {
	resp, err := a.client.UpdateLocation(ctx, ipc.UpdateLocationRequest{
		ID:        id,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Timestamp: loc.Timestamp,
	})
	if err != nil {
		return api.Submission{}, false, err
	}
	return resp.Item, resp.Stale, nil
}

func (a *ipcAccess) Health(ctx context.Context) (queue.DatabaseHealth, error) {
	resp, err := a.client.DatabaseHealth(ctx)
	if resp == nil {
		return queue.DatabaseHealth{}, err
	}
	return queue.DatabaseHealth{
		DBPath:           resp.DBPath,
		DatabaseExists:   resp.DatabaseExists,
		DatabaseReadable: resp.DatabaseReadable,
		SchemaVersion:    resp.SchemaVersion,
		TableExists:      resp.TableExists,
		ColumnsPresent:   resp.ColumnsPresent,
		MissingColumns:   resp.MissingColumns,
		IntegrityCheck:   resp.IntegrityCheck,
		JournalMode:      resp.JournalMode,
		TotalItems:       resp.TotalItems,
		Error:            resp.Error,
	}, err
}

type storeAccess struct {
	engine  *queue.Engine
	service *api.QueueService
}

func (a *storeAccess) Source() string { return "store" }

func (a *storeAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Submission, error) {
	var filters []queue.Status
	for _, s := range statuses {
		parsed, ok := queue.ParseStatus(s)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		filters = append(filters, parsed)
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.Submission, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Retry(ctx context.Context, ids []string) (int, error) {
	return a.service.Retry(ctx, ids)
}

func (a *storeAccess) Remove(ctx context.Context, ids []string) (int, error) {
	return a.service.Remove(ctx, ids)
}

func (a *storeAccess) Clear(ctx context.Context, force bool) (api.ClearResult, error) {
	result, err := a.service.Clear(ctx, force)
	if errors.Is(err, api.ErrConfirmationRequired) {
		return result, nil
	}
	return result, err
}

func (a *storeAccess) UpdateLocation(ctx context.Context, id string, loc queue.Location) (api.Submission, bool, error) {
	item, err := a.service.UpdateLocation(ctx, id, loc)
	if errors.Is(err, queue.ErrStaleLocation) {
		return item, true, nil
	}
	return item, false, err
}

func (a *storeAccess) Health(ctx context.Context) (queue.DatabaseHealth, error) {
	switch store := a.engine.Store().(type) {
	case *queue.SQLiteStore:
		return store.CheckHealth(ctx)
	case *queue.LogStore:
		return queue.DatabaseHealth{DBPath: store.Path(), Error: "queue is using the log fallback"}, nil
	default:
		return queue.DatabaseHealth{Error: fmt.Sprintf("unsupported store %q", a.engine.Store().Kind())}, nil
	}
}

// callTimeout bounds short queue RPCs issued by CLI commands.
const callTimeout = 10 * time.Second

// WithCallTimeout derives a context for a single short queue call.
func WithCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}
