// Package safety decides whether a command is safe to run in sandbox mode.
//
// Classification is a pure function of the command text. Quoted substrings are
// removed before any pattern is checked, so dangerous text used as a literal
// argument (a commit message, an echo) never blocks a command.
package safety

import (
	"path"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Verdict is the classifier's answer.
type Verdict struct {
	Safe   bool
	Reason string
}

type denyEntry struct {
	pattern string
	// bounded entries only match when followed by a command boundary, so that
	// "rm -rf /" does not match "rm -rf /tmp/build".
	bounded     bool
	description string
}

var denyList = []denyEntry{
	{pattern: "rm -rf /", bounded: true, description: "recursive delete of the root directory"},
	{pattern: "rm -fr /", bounded: true, description: "recursive delete of the root directory"},
	{pattern: "rm -rf /*", description: "recursive delete of the root directory"},
	{pattern: "rm -rf --no-preserve-root", description: "recursive delete of the root directory"},
	{pattern: "rm -rf ~", bounded: true, description: "recursive delete of the home directory"},
	{pattern: "rm -rf ~/", bounded: true, description: "recursive delete of the home directory"},
	{pattern: "rm -rf $home", bounded: true, description: "recursive delete of the home directory"},
	{pattern: "rm -rf ${home}", bounded: true, description: "recursive delete of the home directory"},
	{pattern: ":(){ :|:& };:", description: "fork bomb"},
	{pattern: ":(){:|:&};:", description: "fork bomb"},
	{pattern: "> /dev/sd", description: "raw write to a disk device"},
	{pattern: "of=/dev/sd", description: "raw write to a disk device"},
	{pattern: "of=/dev/nvme", description: "raw write to a disk device"},
	{pattern: "of=/dev/disk", description: "raw write to a disk device"},
	{pattern: "mkfs.", description: "filesystem formatting"},
	{pattern: "mkfs ", description: "filesystem formatting"},
	{pattern: "format c:", description: "filesystem formatting"},
	{pattern: "chmod -r 777 /", bounded: true, description: "recursive permission change on the root directory"},
}

// structuralDeny catches rm -rf variants aimed at a root-level wildcard.
var structuralDeny = []struct {
	re          *regexp.Regexp
	description string
}{
	{
		re:          regexp.MustCompile(`\brm\s+(?:-\S+\s+)*-(?:[a-z]*r[a-z]*f|[a-z]*f[a-z]*r)[a-z]*\s+(?:-\S+\s+)*(?:/|~/|\$home/|\$\{home\}/)\*`),
		description: "recursive delete with a root-level wildcard",
	},
}

// protectedTargets are the rm operands that name the root or home directory.
var protectedTargets = map[string]bool{
	"/": true, "/*": true,
	"~": true, "~/": true, "~/*": true,
	"$home": true, "$home/": true, "$home/*": true,
	"${home}": true, "${home}/": true, "${home}/*": true,
}

// allowList holds token prefixes of commands that are routinely safe.
var allowList = [][]string{
	{"ls"}, {"pwd"}, {"cd"}, {"cat"}, {"echo"}, {"printf"}, {"head"}, {"tail"},
	{"less"}, {"wc"}, {"sort"}, {"uniq"}, {"grep"}, {"rg"}, {"find"}, {"which"},
	{"whoami"}, {"date"}, {"env"}, {"diff"}, {"tree"}, {"file"}, {"stat"},
	{"mkdir"}, {"touch"}, {"cp"}, {"mv"}, {"true"}, {"false"}, {"test"},
	{"git", "status"}, {"git", "log"}, {"git", "diff"}, {"git", "show"},
	{"git", "branch"}, {"git", "add"}, {"git", "commit"}, {"git", "push"},
	{"git", "pull"}, {"git", "fetch"}, {"git", "checkout"}, {"git", "switch"},
	{"git", "merge"}, {"git", "rebase"}, {"git", "stash"}, {"git", "clone"},
	{"git", "init"}, {"git", "remote"}, {"git", "tag"},
	{"npm"}, {"npx"}, {"yarn"}, {"pnpm"}, {"node"},
	{"pip"}, {"pip3"}, {"python"}, {"python3"}, {"poetry"}, {"uv"},
	{"go"}, {"cargo"}, {"rustc"}, {"make"}, {"mvn"}, {"gradle"},
	{"docker", "ps"}, {"docker", "images"}, {"docker", "logs"}, {"docker", "build"},
	{"kubectl", "get"}, {"kubectl", "describe"}, {"kubectl", "logs"},
}

// riskyKeywords run only for commands that matched no allow-list entry.
var riskyKeywords = []struct {
	re          *regexp.Regexp
	description string
}{
	{re: regexp.MustCompile(`/dev/(?:sd|hd|xvd|nvme|disk|mmcblk)`), description: "access to a raw disk device"},
	{re: regexp.MustCompile(`\bmkfs`), description: "filesystem formatting"},
	{re: regexp.MustCompile(`>\s*/dev/(?:sd|hd|xvd|nvme|disk|mmcblk)`), description: "redirection onto a disk device"},
	{re: regexp.MustCompile(`\bdd\b.*\bof=/dev/`), description: "disk overwrite with dd"},
	{re: regexp.MustCompile(`\b(?:shred|wipefs|fdisk|parted)\b`), description: "disk partitioning or wiping tool"},
}

var segmentSeparator = regexp.MustCompile(`&&|\|\||[;|&\n]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Classify reports whether command is safe to execute. It never fails and is
// deterministic.
func Classify(command string) Verdict {
	stripped := StripQuoted(command)
	normalized := strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(stripped), " "))
	if normalized == "" {
		return Verdict{Safe: true, Reason: "empty command"}
	}

	for _, entry := range denyList {
		if containsPattern(normalized, entry.pattern, entry.bounded) {
			return Verdict{Reason: "Dangerous command detected: " + entry.description}
		}
	}

	for _, rule := range structuralDeny {
		if rule.re.MatchString(normalized) {
			return Verdict{Reason: "Dangerous command detected: " + rule.description}
		}
	}

	if recursiveProtectedDelete(normalized) {
		return Verdict{Reason: "Dangerous command detected: recursive delete of the root or home directory"}
	}

	if allowed(normalized) {
		return Verdict{Safe: true, Reason: "matches allow-list"}
	}

	for _, rule := range riskyKeywords {
		if rule.re.MatchString(normalized) {
			return Verdict{Reason: "Risky operation detected: " + rule.description}
		}
	}

	return Verdict{Safe: true, Reason: "no dangerous patterns found"}
}

// StripQuoted removes the content of matched single- and double-quoted
// substrings, keeping an empty pair of quotes in their place. An unterminated
// quote is left untouched.
func StripQuoted(command string) string {
	var out strings.Builder
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			out.WriteRune(r)
			if i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
			}
		case '\'', '"':
			end := closingQuote(runes, i)
			if end < 0 {
				out.WriteString(string(runes[i:]))
				return out.String()
			}
			out.WriteRune(r)
			out.WriteRune(r)
			i = end
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// closingQuote returns the index of the quote closing runes[start], or -1.
func closingQuote(runes []rune, start int) int {
	quote := runes[start]
	for j := start + 1; j < len(runes); j++ {
		if quote == '"' && runes[j] == '\\' {
			j++
			continue
		}
		if runes[j] == quote {
			return j
		}
	}
	return -1
}

func containsPattern(s, pattern string, bounded bool) bool {
	offset := 0
	for {
		idx := strings.Index(s[offset:], pattern)
		if idx < 0 {
			return false
		}
		end := offset + idx + len(pattern)
		if !bounded || end == len(s) || isBoundary(s[end]) {
			return true
		}
		offset = offset + idx + 1
	}
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', ';', '&', '|', ')':
		return true
	}
	return false
}

// recursiveProtectedDelete reports whether any segment runs rm with both
// recursive and force options, short or long and in any order, on the root
// or home directory.
func recursiveProtectedDelete(normalized string) bool {
	for _, segment := range segmentSeparator.Split(normalized, -1) {
		fields := strings.Fields(segment)
		for len(fields) > 0 && (fields[0] == "sudo" || fields[0] == "command" || fields[0] == "exec") {
			fields = fields[1:]
		}
		if len(fields) == 0 || (fields[0] != "rm" && !strings.HasSuffix(fields[0], "/rm")) {
			continue
		}

		var recursive, force, endOfOptions bool
		var targets []string
		for _, field := range fields[1:] {
			switch {
			case endOfOptions || !strings.HasPrefix(field, "-") || field == "-":
				targets = append(targets, field)
			case field == "--":
				endOfOptions = true
			case field == "--recursive":
				recursive = true
			case field == "--force":
				force = true
			case strings.HasPrefix(field, "--"):
			default:
				recursive = recursive || strings.ContainsRune(field, 'r')
				force = force || strings.ContainsRune(field, 'f')
			}
		}
		if !recursive || !force {
			continue
		}
		for _, target := range targets {
			if protectedTargets[target] || protectedTargets[path.Clean(target)] {
				return true
			}
		}
	}
	return false
}

// allowed reports whether every segment of a compound command starts with an
// allow-listed prefix.
func allowed(normalized string) bool {
	segments := segmentSeparator.Split(normalized, -1)
	matched := false
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		tokens, err := shellquote.Split(segment)
		if err != nil || len(tokens) == 0 {
			tokens = strings.Fields(segment)
		}
		if !matchesAllowEntry(tokens) {
			return false
		}
		matched = true
	}
	return matched
}

func matchesAllowEntry(tokens []string) bool {
	for _, entry := range allowList {
		if len(tokens) < len(entry) {
			continue
		}
		ok := true
		for i, want := range entry {
			if tokens[i] != want {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
