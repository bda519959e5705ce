// Package audit keeps the append-only trail of permission mutations. Entries
// are never updated or deleted by this service; retention is an operational
// concern outside the core.
package audit

import (
	"context"
	"time"
)

// Action classifies what happened to a permission profile.
type Action string

const (
	ActionGranted Action = "granted"
	ActionRevoked Action = "revoked"
	ActionUpdated Action = "updated"
	ActionExpired Action = "expired"
)

// Entry is one audit record. Module and Actions are carried as plain strings
// so the trail stays readable even if the taxonomy changes underneath it.
type Entry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Action      Action     `json:"action"`
	Module      string     `json:"module"`
	Actions     []string   `json:"permissions"`
	PerformedBy string     `json:"performedBy"`
	PerformedAt time.Time  `json:"performedAt"`
	Reason      string     `json:"reason,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Recorder appends entries to the trail.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Filters narrows a timeline query.
type Filters struct {
	From        time.Time
	To          time.Time
	UserID      string
	PerformedBy string
	Action      string
	Module      string
	Page        int
	PageSize    int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles one timeline page with its paging info.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
