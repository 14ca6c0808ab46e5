package history

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"shellpilot/pkg/shelltypes"
)

// Pattern analysis defaults
const (
	DefaultSampleSize = 50
	maxSamples        = 3
	maxJSONCandidate  = 64 * 1024
	maxJSONDepth      = 16
)

// Pattern kinds reported by Analyze.
const (
	PatternJSON     = "json"
	PatternXML      = "xml"
	PatternURL      = "url"
	PatternFilePath = "file_path"
	PatternAPICall  = "api_call"
)

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}]+`)
	filePathPattern = regexp.MustCompile(`(?:^|[\s'"(=:])((?:~/|\.{1,2}/|/)?(?:[\w.\-]+/)+[\w\-]+\.[A-Za-z0-9]{1,8})\b`)
	apiCallPattern  = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(https?://\S+|/\S*)`)
	xmlOpenPattern  = regexp.MustCompile(`<([A-Za-z][\w:.\-]*)(?:\s[^<>]*)?>`)
)

// AnalyzeOptions selects what Analyze looks at.
type AnalyzeOptions struct {
	Filter         RecordFilter
	GroupBySession bool
	// SampleSize is how many of the most recent records are scanned for
	// structural patterns; zero selects DefaultSampleSize.
	SampleSize int
}

// Counts aggregates records by severity.
type Counts struct {
	Total    int `json:"total" yaml:"total"`
	Errors   int `json:"errors" yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Success  int `json:"success" yaml:"success"`
	Info     int `json:"info" yaml:"info"`
}

func (c *Counts) add(sev shelltypes.Severity) {
	c.Total++
	switch sev {
	case shelltypes.SeverityError:
		c.Errors++
	case shelltypes.SeverityWarning:
		c.Warnings++
	case shelltypes.SeveritySuccess:
		c.Success++
	default:
		c.Info++
	}
}

// PatternStats counts one structural pattern and keeps a few examples.
type PatternStats struct {
	Records int      `json:"records" yaml:"records"`
	Samples []string `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// Analysis is the result of Analyze.
type Analysis struct {
	Counts    Counts                  `json:"counts" yaml:"counts"`
	BySession map[string]Counts       `json:"by_session,omitempty" yaml:"by_session,omitempty"`
	Patterns  map[string]PatternStats `json:"patterns" yaml:"patterns"`
	Sampled   int                     `json:"sampled" yaml:"sampled"`
	From      time.Time               `json:"from,omitempty" yaml:"from,omitempty"`
	To        time.Time               `json:"to,omitempty" yaml:"to,omitempty"`
}

// Analyze counts the selected records by severity, optionally per session,
// and scans the most recent ones for embedded JSON and XML, URLs, file paths
// and HTTP API calls.
func (s *Store) Analyze(opts AnalyzeOptions) (Analysis, error) {
	records, now := s.snapshot()
	selected, err := opts.Filter.apply(records, now)
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{Patterns: make(map[string]PatternStats)}
	if opts.GroupBySession {
		a.BySession = make(map[string]Counts)
	}

	for _, rec := range selected {
		a.Counts.add(rec.Severity)
		if opts.GroupBySession {
			c := a.BySession[rec.SessionName]
			c.add(rec.Severity)
			a.BySession[rec.SessionName] = c
		}
		if a.From.IsZero() || rec.Timestamp.Before(a.From) {
			a.From = rec.Timestamp
		}
		if rec.Timestamp.After(a.To) {
			a.To = rec.Timestamp
		}
	}

	size := opts.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	sample := selected
	if len(sample) > size {
		sample = sample[len(sample)-size:]
	}
	a.Sampled = len(sample)

	for _, kind := range []string{PatternJSON, PatternXML, PatternURL, PatternFilePath, PatternAPICall} {
		a.Patterns[kind] = PatternStats{}
	}

	// newest first, so samples show the latest examples
	for i := len(sample) - 1; i >= 0; i-- {
		content := sample[i].Content
		recordPattern(a.Patterns, PatternJSON, findJSON(content))
		recordPattern(a.Patterns, PatternXML, findXML(content))
		recordPattern(a.Patterns, PatternURL, urlPattern.FindAllString(content, -1))
		recordPattern(a.Patterns, PatternFilePath, submatches(filePathPattern, content, 1))
		recordPattern(a.Patterns, PatternAPICall, apiCallPattern.FindAllString(content, -1))
	}

	return a, nil
}

func recordPattern(patterns map[string]PatternStats, kind string, found []string) {
	if len(found) == 0 {
		return
	}
	stats := patterns[kind]
	stats.Records++
	for _, f := range found {
		if len(stats.Samples) >= maxSamples {
			break
		}
		if sample := truncateSample(f); !contains(stats.Samples, sample) {
			stats.Samples = append(stats.Samples, sample)
		}
	}
	patterns[kind] = stats
}

func submatches(re *regexp.Regexp, s string, group int) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[group])
	}
	return out
}

// bracketGroup is a balanced {...} or [...] span found by scanBrackets.
type bracketGroup struct {
	start, end, depth int
}

// findJSON returns balanced {...} or [...] blocks that are valid JSON. Outer
// blocks are tried before the blocks nested in them, and a block nested in a
// valid one is not reported again.
func findJSON(content string) []string {
	groups := scanBrackets(content)
	slices.SortFunc(groups, func(a, b bracketGroup) int { return a.start - b.start })

	var found []string
	covered := -1
	for _, g := range groups {
		if g.start <= covered || g.depth > maxJSONDepth || g.end-g.start+1 > maxJSONCandidate {
			continue
		}
		candidate := content[g.start : g.end+1]
		if (candidate[0] == '[' && len(candidate) <= 2) || !gjson.Valid(candidate) {
			continue
		}
		found = append(found, candidate)
		covered = g.end
	}
	return found
}

// scanBrackets pairs brackets in a single pass, ignoring brackets inside JSON
// strings. Unclosed openers produce no group; the groups nested in them are
// still reported with their depth.
func scanBrackets(content string) []bracketGroup {
	var groups []bracketGroup
	var open []int
	inString := false
	for i := 0; i < len(content); i++ {
		c := content[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			case '\n':
				// JSON strings never span lines
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(open) > 0
		case '{', '[':
			open = append(open, i)
		case '}', ']':
			if len(open) == 0 {
				continue
			}
			last := len(open) - 1
			groups = append(groups, bracketGroup{start: open[last], end: i, depth: last})
			open = open[:last]
		}
	}
	return groups
}

// findXML returns elements that open and later close with the same tag name.
func findXML(content string) []string {
	var found []string
	// next closing tag position per name, or -1 once none remains
	closings := make(map[string]int)
	for _, loc := range xmlOpenPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		closing := "</" + name + ">"
		at, seen := closings[name]
		if !seen || (at >= 0 && at < loc[1]) {
			at = -1
			if idx := strings.Index(content[loc[1]:], closing); idx >= 0 {
				at = loc[1] + idx
			}
			closings[name] = at
		}
		if at >= 0 {
			found = append(found, content[loc[0]:at+len(closing)])
		}
	}
	return found
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func truncateSample(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
