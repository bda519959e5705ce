package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// TimelineRepository provides the queries the service needs.
type TimelineRepository interface {
	Timeline(ctx context.Context, filters Filters) ([]Entry, bool, error)
}

// Service coordinates audit timeline reads and exports.
type Service struct {
	repo TimelineRepository
}

// NewService builds a Service instance.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of the trail.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := clampPageSize(filters.PageSize)
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	filters.Page = page
	filters.PageSize = pageSize
	rows, hasNext, err := s.repo.Timeline(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// ExportCSV renders the filtered trail as CSV, walking every page.
func (s *Service) ExportCSV(ctx context.Context, filters Filters) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"performed_at", "user_id", "action", "module", "permissions", "performed_by", "reason", "expires_at"}); err != nil {
		return nil, err
	}
	filters.Page = 1
	filters.PageSize = 50
	for {
		result, err := s.Timeline(ctx, filters)
		if err != nil {
			return nil, err
		}
		for _, e := range result.Rows {
			expires := ""
			if e.ExpiresAt != nil {
				expires = e.ExpiresAt.UTC().Format(time.RFC3339)
			}
			record := []string{
				e.PerformedAt.UTC().Format(time.RFC3339),
				e.UserID,
				string(e.Action),
				e.Module,
				strings.Join(e.Actions, " "),
				e.PerformedBy,
				e.Reason,
				expires,
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		if !result.Paging.HasNext {
			break
		}
		filters.Page = result.Paging.NextPage
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
