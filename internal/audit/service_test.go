package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimelineRepo struct {
	entries []Entry
	filters []Filters
	err     error
}

func (m *mockTimelineRepo) Timeline(_ context.Context, filters Filters) ([]Entry, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	m.filters = append(m.filters, filters)
	start := (filters.Page - 1) * filters.PageSize
	if start >= len(m.entries) {
		return nil, false, nil
	}
	end := start + filters.PageSize
	if end > len(m.entries) {
		end = len(m.entries)
	}
	return m.entries[start:end], end < len(m.entries), nil
}

func makeEntries(n int) []Entry {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{
			ID:          fmt.Sprintf("e%d", i),
			UserID:      "u1",
			Action:      ActionGranted,
			Module:      "finance",
			Actions:     []string{"view", "export"},
			PerformedBy: "admin-1",
			PerformedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestTimelinePaging(t *testing.T) {
	repo := &mockTimelineRepo{entries: makeEntries(45)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 20)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)

	result, err = svc.Timeline(context.Background(), Filters{Page: 3, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.Zero(t, result.Paging.NextPage)
}

func TestTimelineClampsPageArguments(t *testing.T) {
	repo := &mockTimelineRepo{entries: makeEntries(5)}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), Filters{Page: 0, PageSize: 0})
	require.NoError(t, err)
	require.Len(t, repo.filters, 1)
	assert.Equal(t, 1, repo.filters[0].Page)
	assert.Equal(t, 20, repo.filters[0].PageSize)

	_, err = svc.Timeline(context.Background(), Filters{Page: 1, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, repo.filters[1].PageSize)
}

func TestTimelineRepoError(t *testing.T) {
	repo := &mockTimelineRepo{err: errors.New("connection reset")}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), Filters{})
	assert.EqualError(t, err, "connection reset")
}

func TestExportCSVWalksAllPages(t *testing.T) {
	repo := &mockTimelineRepo{entries: makeEntries(120)}
	svc := NewService(repo)

	raw, err := svc.ExportCSV(context.Background(), Filters{UserID: "u1"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	// Header plus every entry across three pages.
	require.Len(t, lines, 121)
	assert.Equal(t, "performed_at,user_id,action,module,permissions,performed_by,reason,expires_at", lines[0])
	assert.Contains(t, lines[1], "2026-03-01T09:00:00Z")
	assert.Contains(t, lines[1], "view export")
}

func TestExportCSVIncludesExpiry(t *testing.T) {
	exp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo := &mockTimelineRepo{entries: []Entry{{
		ID:          "e1",
		UserID:      "u1",
		Action:      ActionGranted,
		Module:      "finance",
		Actions:     []string{"view"},
		PerformedBy: "admin-1",
		PerformedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Reason:      "month end",
		ExpiresAt:   &exp,
	}}}
	svc := NewService(repo)

	raw, err := svc.ExportCSV(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2026-03-02T09:00:00Z")
	assert.Contains(t, string(raw), "month end")
}
