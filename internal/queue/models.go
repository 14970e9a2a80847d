package queue

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Order endpoints expect amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status represents the lifecycle of a queued submission.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSending       Status = "sending"
	StatusLocationStale Status = "locationStale"
	StatusFailed        Status = "failed"
	// StatusCompleted exists for in-memory transitions only. Delivered records
	// are removed rather than stored as completed.
	StatusCompleted Status = "completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSending,
	StatusLocationStale,
	StatusFailed,
	StatusCompleted,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus attempts to map a string value to a known queue status.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.TrimSpace(value)
	for _, status := range allStatuses {
		if strings.EqualFold(string(status), normalized) {
			return status, true
		}
	}
	return "", false
}

// StaleLocationMessage is recorded when a submission is parked for a location refresh.
const StaleLocationMessage = "Location is older than the freshness window; refresh the location to continue"

// Location is a geolocation reading attached to an order.
type Location struct {
	Lat      float64  `json:"lat" validate:"latitude"`
	Lng      float64  `json:"lng" validate:"longitude"`
	Accuracy *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	// Timestamp is the reading time in epoch milliseconds.
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// Product is one order line.
type Product struct {
	SKU      string          `json:"sku" validate:"required"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// Payload is the order body delivered to the submit endpoint. The queue only
// inspects Location.Timestamp.
type Payload struct {
	Client         string          `json:"client" validate:"required"`
	Products       []Product       `json:"products" validate:"required,min=1,dive"`
	Total          decimal.Decimal `json:"total"`
	Location       Location        `json:"location"`
	Email          string          `json:"email" validate:"required,email"`
	AdminOverride  bool            `json:"adminOverride"`
	OverrideReason string          `json:"overrideReason,omitempty" validate:"required_if=AdminOverride true"`
	Date           string          `json:"date" validate:"required"`
	Period         string          `json:"period" validate:"required"`
	PhotoIDs       []string        `json:"photoIds,omitempty"`
	PhotoURLs      []string        `json:"photoUrls,omitempty"`
}

// PhotosReady reports whether every referenced photo has finished uploading.
func (p Payload) PhotosReady() bool {
	return len(p.PhotoIDs) <= len(p.PhotoURLs)
}

// Submission is a queued order awaiting delivery.
type Submission struct {
	ID            string     `json:"id"`
	Payload       Payload    `json:"payload"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	RetryCount    int        `json:"retryCount"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	IsAdmin       bool       `json:"isAdmin"`
}

// NewSubmission carries the caller-supplied fields of a submission.
type NewSubmission struct {
	ID      string
	Payload Payload
	IsAdmin bool
}

// Patch is a partial update. Nil fields are left untouched; an empty
// ErrorMessage clears the stored message.
type Patch struct {
	Status        *Status
	LastAttemptAt *time.Time
	RetryCount    *int
	ErrorMessage  *string
	Location      *Location
}

func (p Patch) apply(rec *Submission) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.LastAttemptAt != nil {
		ts := *p.LastAttemptAt
		rec.LastAttemptAt = &ts
	}
	if p.RetryCount != nil {
		rec.RetryCount = *p.RetryCount
	}
	if p.ErrorMessage != nil {
		rec.ErrorMessage = *p.ErrorMessage
	}
	if p.Location != nil {
		rec.Payload.Location = *p.Location
	}
}

// Ptr returns a pointer to v for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Stats summarizes queue contents.
type Stats struct {
	Total       int
	ByStatus    map[Status]int
	Retried     int
	OldestAt    *time.Time
	StorageKind string
}
