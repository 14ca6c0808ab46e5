package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"shellpilot/internal/history"
	"shellpilot/pkg/shelltypes"
)

// filterFlags are the record selection flags shared by the history commands.
type filterFlags struct {
	sessions   []string
	severities []string
	sources    []string
	rangeName  string
	since      time.Duration
	limit      int
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.sessions, "session", "s", nil, "Only these sessions")
	fs.StringSliceVar(&f.severities, "severity", nil, "Only these severities (info|warning|error|success)")
	fs.StringSliceVar(&f.sources, "source", nil, "Only these sources (command|output|diagnosis|system)")
	fs.StringVar(&f.rangeName, "range", "", "Time range ("+strings.Join(history.RangeNames(), "|")+")")
	fs.DurationVar(&f.since, "since", 0, "Only records newer than this")
	fs.IntVarP(&f.limit, "limit", "n", 0, "Keep only the most recent records")
}

func (f *filterFlags) filter(now time.Time) (history.RecordFilter, error) {
	rf := history.RecordFilter{
		Sessions: f.sessions,
		Sources:  f.sources,
		Range:    history.TimeRange{Name: f.rangeName},
		Limit:    f.limit,
	}
	for _, s := range f.severities {
		rf.Severities = append(rf.Severities, shelltypes.Severity(s))
	}
	if f.since > 0 {
		if f.rangeName != "" {
			return rf, errors.New("use either --range or --since")
		}
		rf.Range = history.TimeRange{Name: history.RangeCustom, Start: now.Add(-f.since)}
	}
	return rf, nil
}

// parseArgs parses args with fs. It reports false when only help was asked for.
func parseArgs(fs *pflag.FlagSet, args []string, w io.Writer) (bool, error) {
	fs.SetOutput(w)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// historySearch implements "history search [flags] <query>".
func historySearch(store *history.Store, args []string, w io.Writer, now time.Time) error {
	var (
		ff  filterFlags
		q   history.SearchQuery
		all bool
	)
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	ff.register(fs)
	fs.BoolVarP(&q.Regex, "regex", "e", false, "Treat the query as a regular expression")
	fs.BoolVarP(&q.CaseSensitive, "case", "c", false, "Match case")
	fs.IntVarP(&q.ContextLines, "context", "C", 0, "Lines of context around each match")
	fs.IntVarP(&q.MaxResults, "max", "m", 0, "Maximum matches to show")
	fs.BoolVar(&all, "all", false, "Show every match")
	if ok, err := parseArgs(fs, args, w); !ok {
		return err
	}

	q.Query = strings.Join(fs.Args(), " ")
	if all {
		q.MaxResults = store.Len()
	}
	filter, err := ff.filter(now)
	if err != nil {
		return err
	}
	q.Filter = filter

	found, err := store.Search(q)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, m := range found.Matches {
		b.WriteString(dimStyle.Render(fmt.Sprintf("#%d [%s] %s:%d", m.Record.ID, m.Record.SessionName, m.Record.Source, m.Line)) + "\n")
		for _, line := range m.Before {
			b.WriteString(dimStyle.Render("  "+line) + "\n")
		}
		b.WriteString(warnStyle.Render("> "+m.Text) + "\n")
		for _, line := range m.After {
			b.WriteString(dimStyle.Render("  "+line) + "\n")
		}
	}
	switch {
	case found.Total == 0:
		b.WriteString("no matches\n")
	case found.Truncated:
		fmt.Fprintf(&b, "showing %d of %d matches\n", len(found.Matches), found.Total)
	default:
		fmt.Fprintf(&b, "%d matches\n", found.Total)
	}
	_, err = io.WriteString(w, b.String())
	return err
}

// historyAnalyze implements "history analyze [flags]".
func historyAnalyze(store *history.Store, args []string, w io.Writer, now time.Time) error {
	var (
		ff     filterFlags
		opts   history.AnalyzeOptions
		format string
	)
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	ff.register(fs)
	fs.BoolVar(&opts.GroupBySession, "by-session", false, "Break counts down per session")
	fs.IntVar(&opts.SampleSize, "sample", 0, "Recent records scanned for patterns")
	fs.StringVarP(&format, "output", "o", formatText, "Format (text|json|yaml)")
	if ok, err := parseArgs(fs, args, w); !ok {
		return err
	}

	filter, err := ff.filter(now)
	if err != nil {
		return err
	}
	opts.Filter = filter

	analysis, err := store.Analyze(opts)
	if err != nil {
		return err
	}
	if format != formatText {
		if format == formatXML {
			return fmt.Errorf("analysis has no xml format")
		}
		return encode(w, analysis, format)
	}
	_, err = io.WriteString(w, analysisText(analysis))
	return err
}

func countsLine(c history.Counts) string {
	return fmt.Sprintf("%d records: %s, %s, %s, %d info",
		c.Total,
		errorStyle.Render(fmt.Sprintf("%d errors", c.Errors)),
		warnStyle.Render(fmt.Sprintf("%d warnings", c.Warnings)),
		successStyle.Render(fmt.Sprintf("%d success", c.Success)),
		c.Info)
}

func analysisText(a history.Analysis) string {
	var b strings.Builder
	b.WriteString(countsLine(a.Counts) + "\n")

	if len(a.BySession) > 0 {
		names := make([]string, 0, len(a.BySession))
		for name := range a.BySession {
			names = append(names, name)
		}
		sort.Strings(names)

		t := newTable("SESSION", "TOTAL", "ERRORS", "WARNINGS", "SUCCESS", "INFO")
		for _, name := range names {
			c := a.BySession[name]
			t.Row(name, fmt.Sprint(c.Total), fmt.Sprint(c.Errors), fmt.Sprint(c.Warnings), fmt.Sprint(c.Success), fmt.Sprint(c.Info))
		}
		b.WriteString(t.String() + "\n")
	}

	if len(a.Patterns) == 0 {
		fmt.Fprintf(&b, "no patterns in the %d most recent records\n", a.Sampled)
		return b.String()
	}
	kinds := make([]string, 0, len(a.Patterns))
	for kind := range a.Patterns {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Fprintf(&b, "patterns in the %d most recent records:\n", a.Sampled)
	for _, kind := range kinds {
		p := a.Patterns[kind]
		fmt.Fprintf(&b, "  %s %s\n", infoStyle.Render(kind), dimStyle.Render(fmt.Sprintf("(%d records)", p.Records)))
		for _, sample := range p.Samples {
			b.WriteString("    " + sample + "\n")
		}
	}
	return b.String()
}

// historyExport implements "history export [flags]".
func historyExport(store *history.Store, args []string, w io.Writer, now time.Time) error {
	var (
		ff     filterFlags
		opts   history.ExportOptions
		format string
		file   string
	)
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	ff.register(fs)
	fs.StringVarP(&format, "format", "f", string(history.FormatText), "Format (text|json|yaml)")
	fs.BoolVar(&opts.IncludeTimestamps, "timestamps", false, "Include timestamps")
	fs.BoolVar(&opts.IncludeMetadata, "metadata", false, "Include IDs, sources and commands")
	fs.StringVar(&file, "file", "", "Write to this file instead of printing")
	if ok, err := parseArgs(fs, args, w); !ok {
		return err
	}

	filter, err := ff.filter(now)
	if err != nil {
		return err
	}
	opts.Filter = filter
	opts.Format = history.ExportFormat(format)

	if file == "" {
		return store.ExportTo(w, opts)
	}
	data, err := store.Export(opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	_, err = fmt.Fprintf(w, "exported %d bytes to %s\n", len(data), file)
	return err
}

// historyClear implements "history clear [session]".
func historyClear(store *history.Store, args []string, w io.Writer) error {
	if len(args) > 1 {
		return errors.New("usage: history clear [session]")
	}
	session := ""
	if len(args) == 1 {
		session = args[0]
	}
	removed := store.Clear(session)
	if session == "" {
		_, err := fmt.Fprintf(w, "removed %d records\n", removed)
		return err
	}
	_, err := fmt.Fprintf(w, "removed %d records of %s\n", removed, session)
	return err
}
