package history

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"shellpilot/pkg/shelltypes"
)

// ErrInvalidQuery is returned for empty queries and malformed regular expressions.
var ErrInvalidQuery = errors.New("invalid search query")

// DefaultMaxResults caps search results when the query sets no limit.
const DefaultMaxResults = 100

// RecordFilter selects records. Empty slices match everything.
type RecordFilter struct {
	Sessions   []string              `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Severities []shelltypes.Severity `json:"severities,omitempty" yaml:"severities,omitempty"`
	Sources    []string              `json:"sources,omitempty" yaml:"sources,omitempty"`
	Range      TimeRange             `json:"range,omitempty" yaml:"range,omitempty"`
	// Limit keeps only the most recent records. Zero means no limit.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

type compiledFilter struct {
	sessions   map[string]bool
	severities map[shelltypes.Severity]bool
	sources    map[string]bool
	window     window
}

func (f RecordFilter) compile(now time.Time) (compiledFilter, error) {
	w, err := f.Range.window(now)
	if err != nil {
		return compiledFilter{}, err
	}
	cf := compiledFilter{window: w}
	if len(f.Sessions) > 0 {
		cf.sessions = toSet(f.Sessions)
	}
	if len(f.Severities) > 0 {
		cf.severities = make(map[shelltypes.Severity]bool, len(f.Severities))
		for _, s := range f.Severities {
			cf.severities[s] = true
		}
	}
	if len(f.Sources) > 0 {
		cf.sources = toSet(f.Sources)
	}
	return cf, nil
}

func (cf compiledFilter) match(rec shelltypes.OutputRecord) bool {
	if cf.sessions != nil && !cf.sessions[rec.SessionName] {
		return false
	}
	if cf.severities != nil && !cf.severities[rec.Severity] {
		return false
	}
	if cf.sources != nil && !cf.sources[rec.Source] {
		return false
	}
	return cf.window.contains(rec.Timestamp)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// apply filters records, keeping append order, and honours Limit.
func (f RecordFilter) apply(records []shelltypes.OutputRecord, now time.Time) ([]shelltypes.OutputRecord, error) {
	cf, err := f.compile(now)
	if err != nil {
		return nil, err
	}

	out := make([]shelltypes.OutputRecord, 0, len(records))
	for _, rec := range records {
		if cf.match(rec) {
			out = append(out, rec)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Filter returns copies of the records selected by f, oldest first.
func (s *Store) Filter(f RecordFilter) ([]shelltypes.OutputRecord, error) {
	records, now := s.snapshot()
	return f.apply(records, now)
}

// SearchQuery is a keyword or regular-expression search over record lines.
type SearchQuery struct {
	Query         string
	Regex         bool
	CaseSensitive bool
	Filter        RecordFilter
	// ContextLines adds up to this many lines of the same record around a match.
	ContextLines int
	// MaxResults caps the matches returned; zero selects DefaultMaxResults.
	MaxResults int
}

// Match is one matching line.
type Match struct {
	Record shelltypes.OutputRecord
	Line   int // 1-based line within Record.Content
	Text   string
	Before []string
	After  []string
}

// SearchResult holds the matches of a search. Total counts every match,
// including those beyond the cap.
type SearchResult struct {
	Matches   []Match
	Total     int
	Truncated bool
}

// Search finds matching lines, oldest record first.
func (s *Store) Search(q SearchQuery) (SearchResult, error) {
	matcher, err := q.matcher()
	if err != nil {
		return SearchResult{}, err
	}

	records, now := s.snapshot()
	selected, err := q.Filter.apply(records, now)
	if err != nil {
		return SearchResult{}, err
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	var result SearchResult
	for _, rec := range selected {
		lines := strings.Split(rec.Content, "\n")
		for i, line := range lines {
			if !matcher(line) {
				continue
			}
			result.Total++
			if len(result.Matches) >= limit {
				result.Truncated = true
				continue
			}
			result.Matches = append(result.Matches, Match{
				Record: rec,
				Line:   i + 1,
				Text:   line,
				Before: contextBefore(lines, i, q.ContextLines),
				After:  contextAfter(lines, i, q.ContextLines),
			})
		}
	}
	return result, nil
}

func (q SearchQuery) matcher() (func(string) bool, error) {
	if q.Query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}

	if q.Regex {
		pattern := q.Query
		if !q.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return re.MatchString, nil
	}

	if q.CaseSensitive {
		return func(line string) bool { return strings.Contains(line, q.Query) }, nil
	}
	needle := strings.ToLower(q.Query)
	return func(line string) bool { return strings.Contains(strings.ToLower(line), needle) }, nil
}

func contextBefore(lines []string, i, n int) []string {
	if n <= 0 {
		return nil
	}
	start := i - n
	if start < 0 {
		start = 0
	}
	if start == i {
		return nil
	}
	return append([]string(nil), lines[start:i]...)
}

func contextAfter(lines []string, i, n int) []string {
	if n <= 0 {
		return nil
	}
	end := i + 1 + n
	if end > len(lines) {
		end = len(lines)
	}
	if end == i+1 {
		return nil
	}
	return append([]string(nil), lines[i+1:end]...)
}
