// Package notifications carries daemon messages to foreground clients.
//
// The Hub is the primary channel: a bounded buffer that the IPC and HTTP
// surfaces long-poll. NewService wraps it with optional ntfy and Redis
// mirrors. Delivery is best effort everywhere; a lost message never loses an
// order because clients re-read the queue store.
package notifications
