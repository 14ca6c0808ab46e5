package history

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellpilot/internal/testutils"
	"shellpilot/pkg/shelltypes"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// seededStore returns a store whose records are spaced one minute apart,
// ending at the clock's current time.
func seededStore(t *testing.T) (*Store, *testutils.ManualClock) {
	t.Helper()
	clock := testutils.NewManualClock(epoch)
	s := NewStore(WithClock(clock.Now))

	records := []shelltypes.OutputRecord{
		{SessionName: "api", Source: shelltypes.SourceCommand, Command: "npm start", Severity: shelltypes.SeverityInfo, Content: "$ npm start"},
		{SessionName: "api", Source: shelltypes.SourceOutput, Command: "npm start", Severity: shelltypes.SeverityError,
			Content: "Error: listen EADDRINUSE: address already in use :::3000\n    at Server.listen (net.js:1:1)"},
		{SessionName: "web", Source: shelltypes.SourceOutput, Command: "npm test", Severity: shelltypes.SeveritySuccess,
			Content: "PASS src/app.test.js\nTests: 4 passed, 4 total"},
		{SessionName: "web", Source: shelltypes.SourceOutput, Command: "npm run lint", Severity: shelltypes.SeverityWarning,
			Content: "warning: unused variable 'x' in src/app.js"},
		{SessionName: "api", Source: shelltypes.SourceDiagnosis, Command: "npm start", Severity: shelltypes.SeverityError,
			Content: "PORT_IN_USE: Port 3000 is already in use"},
	}
	for _, rec := range records {
		s.Append(rec)
		clock.Advance(time.Minute)
	}
	// last record is at epoch+4m, clock ends at epoch+5m
	return s, clock
}

func TestStore_AppendAssignsMonotonicIDs(t *testing.T) {
	s, _ := seededStore(t)

	records := s.Records()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.ID)
		assert.Equal(t, epoch.Add(time.Duration(i)*time.Minute), rec.Timestamp)
	}

	s.Clear("")
	next := s.Append(shelltypes.OutputRecord{SessionName: "x", Content: "after clear"})
	assert.Equal(t, uint64(6), next.ID)
	assert.Equal(t, shelltypes.SeverityInfo, next.Severity)
}

func TestStore_QueriesNeverMutate(t *testing.T) {
	s, _ := seededStore(t)
	before := s.Records()

	filtered, err := s.Filter(RecordFilter{})
	require.NoError(t, err)
	filtered[0].Content = "changed"

	res, err := s.Search(SearchQuery{Query: "error"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	res.Matches[0].Record.Content = "changed"

	_, err = s.Analyze(AnalyzeOptions{GroupBySession: true})
	require.NoError(t, err)
	_, err = s.Export(ExportOptions{Format: FormatJSON, IncludeMetadata: true})
	require.NoError(t, err)

	if diff := cmp.Diff(before, s.Records()); diff != "" {
		t.Errorf("stored records changed (-before +after):\n%s", diff)
	}
}

func TestStore_Clear(t *testing.T) {
	s, _ := seededStore(t)

	assert.Equal(t, 3, s.Clear("api"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Clear("api"))
	assert.Equal(t, 2, s.Clear(""))
	assert.Zero(t, s.Len())
}

func TestStore_KeepsEveryRecord(t *testing.T) {
	s := NewStore()
	for i := 0; i < 1000; i++ {
		s.Append(shelltypes.OutputRecord{SessionName: "s", Content: "line"})
	}

	records := s.Records()
	require.Len(t, records, 1000)
	assert.Equal(t, uint64(1), records[0].ID)
	assert.Equal(t, uint64(1000), records[999].ID)
}

func TestStore_Sessions(t *testing.T) {
	s, _ := seededStore(t)

	want := []SessionCount{
		{Session: "api", Records: 3, Latest: epoch.Add(4 * time.Minute)},
		{Session: "web", Records: 2, Latest: epoch.Add(3 * time.Minute)},
	}
	if diff := cmp.Diff(want, s.Sessions()); diff != "" {
		t.Errorf("Sessions() mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeRange_Resolve(t *testing.T) {
	now := epoch

	tests := []struct {
		name      string
		r         TimeRange
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{name: "empty is unbounded", r: TimeRange{}},
		{name: "all is unbounded", r: TimeRange{Name: RangeAll}},
		{name: "last 5 minutes", r: TimeRange{Name: RangeLast5Minutes}, wantStart: now.Add(-5 * time.Minute), wantEnd: now},
		{name: "last 15 minutes", r: TimeRange{Name: RangeLast15Minutes}, wantStart: now.Add(-15 * time.Minute), wantEnd: now},
		{name: "last hour", r: TimeRange{Name: RangeLastHour}, wantStart: now.Add(-time.Hour), wantEnd: now},
		{name: "last day", r: TimeRange{Name: RangeLastDay}, wantStart: now.Add(-24 * time.Hour), wantEnd: now},
		{name: "last week", r: TimeRange{Name: RangeLastWeek}, wantStart: now.Add(-7 * 24 * time.Hour), wantEnd: now},
		{name: "custom", r: TimeRange{Name: RangeCustom, Start: now.Add(-time.Hour), End: now}, wantStart: now.Add(-time.Hour), wantEnd: now},
		{name: "custom open end", r: TimeRange{Name: RangeCustom, Start: now.Add(-time.Hour)}, wantStart: now.Add(-time.Hour)},
		{name: "custom without bounds", r: TimeRange{Name: RangeCustom}, wantErr: true},
		{name: "custom reversed", r: TimeRange{Name: RangeCustom, Start: now, End: now.Add(-time.Hour)}, wantErr: true},
		{name: "unknown name", r: TimeRange{Name: "yesterday"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.r.Resolve(now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestRangeNames(t *testing.T) {
	for _, name := range RangeNames() {
		r := TimeRange{Name: name}
		if name == RangeCustom {
			r.Start = epoch
		}
		_, _, err := r.Resolve(epoch)
		assert.NoError(t, err, name)
	}
}
