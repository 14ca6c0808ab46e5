package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellpilot/pkg/shelltypes"
)

func TestStore_Filter(t *testing.T) {
	s, _ := seededStore(t)

	tests := []struct {
		name    string
		filter  RecordFilter
		wantIDs []uint64
	}{
		{name: "everything", filter: RecordFilter{}, wantIDs: []uint64{1, 2, 3, 4, 5}},
		{name: "by session", filter: RecordFilter{Sessions: []string{"web"}}, wantIDs: []uint64{3, 4}},
		{name: "by severity", filter: RecordFilter{Severities: []shelltypes.Severity{shelltypes.SeverityError}}, wantIDs: []uint64{2, 5}},
		{name: "by source", filter: RecordFilter{Sources: []string{shelltypes.SourceDiagnosis}}, wantIDs: []uint64{5}},
		// clock is at +5m, so the window starts at +2m and the record at +2m is included
		{name: "last 3 records by time", filter: RecordFilter{Range: TimeRange{Name: RangeCustom, Start: epoch.Add(2 * time.Minute)}}, wantIDs: []uint64{3, 4, 5}},
		{name: "last 5 minutes", filter: RecordFilter{Range: TimeRange{Name: RangeLast5Minutes}}, wantIDs: []uint64{1, 2, 3, 4, 5}},
		{name: "limit keeps newest", filter: RecordFilter{Limit: 2}, wantIDs: []uint64{4, 5}},
		{name: "combined", filter: RecordFilter{Sessions: []string{"api"}, Severities: []shelltypes.Severity{shelltypes.SeverityError}, Limit: 1}, wantIDs: []uint64{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.Filter(tt.filter)
			require.NoError(t, err)

			var ids []uint64
			for _, rec := range records {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_FilterRelativeRangeMovesWithClock(t *testing.T) {
	s, clock := seededStore(t)

	clock.Advance(time.Hour)
	records, err := s.Filter(RecordFilter{Range: TimeRange{Name: RangeLast5Minutes}})
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = s.Filter(RecordFilter{Range: TimeRange{Name: RangeLastDay}})
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestStore_FilterInvalidRange(t *testing.T) {
	s, _ := seededStore(t)
	_, err := s.Filter(RecordFilter{Range: TimeRange{Name: "fortnight"}})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestStore_Search(t *testing.T) {
	s, _ := seededStore(t)

	t.Run("keyword is case-insensitive by default", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: "EADDRINUSE"})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, uint64(2), res.Matches[0].Record.ID)
		assert.Equal(t, 1, res.Matches[0].Line)

		res, err = s.Search(SearchQuery{Query: "eaddrinuse"})
		require.NoError(t, err)
		assert.Len(t, res.Matches, 1)
	})

	t.Run("case sensitive", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: "eaddrinuse", CaseSensitive: true})
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
	})

	t.Run("regex", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: `port \d+`, Regex: true})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "PORT_IN_USE: Port 3000 is already in use", res.Matches[0].Text)
	})

	t.Run("context lines stay within the record", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: "Server.listen", ContextLines: 2})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, 2, res.Matches[0].Line)
		assert.Equal(t, []string{"Error: listen EADDRINUSE: address already in use :::3000"}, res.Matches[0].Before)
		assert.Empty(t, res.Matches[0].After)
	})

	t.Run("filters apply", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: "src/app", Filter: RecordFilter{Severities: []shelltypes.Severity{shelltypes.SeverityWarning}}})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "web", res.Matches[0].Record.SessionName)
	})

	t.Run("cap reports total", func(t *testing.T) {
		res, err := s.Search(SearchQuery{Query: "npm|src|port", Regex: true, MaxResults: 1})
		require.NoError(t, err)
		assert.Len(t, res.Matches, 1)
		assert.True(t, res.Truncated)
		assert.Greater(t, res.Total, 1)
	})

	t.Run("invalid queries", func(t *testing.T) {
		_, err := s.Search(SearchQuery{})
		assert.ErrorIs(t, err, ErrInvalidQuery)

		_, err = s.Search(SearchQuery{Query: "([", Regex: true})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
