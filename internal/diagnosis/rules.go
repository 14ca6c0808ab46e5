// Package diagnosis classifies failed commands into an actionable taxonomy.
//
// Classification is an ordered, flat rule table evaluated top to bottom
// against the normalized output; the first rule with a matching pattern
// wins. When no rule matches, the exit code decides.
package diagnosis

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"shellpilot/pkg/shelltypes"
)

// Error types produced by the classifier.
const (
	ModuleNotFound       = "MODULE_NOT_FOUND"
	PermissionDenied     = "PERMISSION_DENIED"
	PortInUse            = "PORT_IN_USE"
	FileNotFound         = "FILE_NOT_FOUND"
	NotGitRepository     = "NOT_GIT_REPOSITORY"
	MergeConflict        = "MERGE_CONFLICT"
	PushRejected         = "PUSH_REJECTED"
	MissingScript        = "MISSING_SCRIPT"
	DependencyError      = "DEPENDENCY_ERROR"
	SyntaxError          = "SYNTAX_ERROR"
	NetworkError         = "NETWORK_ERROR"
	CommandNotFound      = "COMMAND_NOT_FOUND"
	CommandNotExecutable = "COMMAND_NOT_EXECUTABLE"
	Interrupted          = "INTERRUPTED"
	Killed               = "KILLED"
	UnknownError         = "UNKNOWN_ERROR"
	ExecutionError       = "EXECUTION_ERROR"
	ShellNotFound        = "SHELL_NOT_FOUND"
)

// Rule is one entry of the classification table. A rule matches when any of
// its patterns matches the output; the submatch of the first matching pattern
// is handed to the rule's builder.
type Rule struct {
	ErrorType  string
	Category   string
	Confidence shelltypes.Confidence
	Patterns   []*regexp.Regexp
	build      func(c *ruleContext) (string, []string)
}

type ruleContext struct {
	output  string
	command string
	pattern int      // index of the matching pattern within the rule
	match   []string // submatches of that pattern
}

// group returns the first non-empty capture group.
func (c *ruleContext) group() string {
	for _, g := range c.match[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// find runs re against the full output and returns its first non-empty group.
func (c *ruleContext) find(re *regexp.Regexp) string {
	m := re.FindStringSubmatch(c.output)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile("(?im)" + pattern)
}

var (
	nodeModulePattern   = re(`cannot find module ['"]([^'"]+)['"]`)
	webpackModule       = re(`module not found: (?:error: )?can't resolve ['"]([^'"]+)['"]`)
	pythonModulePattern = re(`no module named ['"]?([\w.\-]+)['"]?`)
	goPackagePattern    = re(`(?:no required module provides package|cannot find package) "?([^\s";:]+)"?`)

	permissionPathPattern = re(`(?:eacces|eperm)[^\n]*?(?:open|mkdir|unlink|rmdir|scandir|access|rename|symlink) '([^']+)'|([^\s:'"]+): permission denied`)
	pidPattern            = re(`\bpid[:= ]+(\d+)`)
	filePathPattern       = re(`(?:enoent)[^\n]*?(?:open|stat|lstat|scandir|access|unlink) '([^']+)'|can't open file '([^']+)'|(?:^|\s)([^\s:'"]+): no such file or directory|no such file or directory: (\S+)`)
	conflictFilePattern   = re(`merge conflict in (\S+)`)
	rejectedBranch        = re(`\[rejected\]\s+(\S+)\s+->`)
	syntaxLocation        = re(`([\w./\-]+\.(?:js|mjs|cjs|ts|tsx|jsx|py|sh|go|rb|json)):(\d+)|file "([^"]+)", line (\d+)`)
	hostPattern           = re(`getaddrinfo \w+ ([\w.\-]+)|could not resolve host:? ([\w.\-]+)|lookup ([\w.\-]+)(?: on|:)|failed to connect to ([\w.\-]+)`)
)

// rules is the ordered classification table. Order is significant: earlier
// rules win when several signatures occur in the same output.
var rules = []Rule{
	{
		ErrorType:  ModuleNotFound,
		Category:   "Dependencies",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns: []*regexp.Regexp{
			nodeModulePattern,
			webpackModule,
			pythonModulePattern,
			goPackagePattern,
			re(`modulenotfounderror|importerror: no module`),
		},
		build: buildModuleNotFound,
	},
	{
		ErrorType:  PermissionDenied,
		Category:   "Permissions",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns:   []*regexp.Regexp{re(`permission denied|\beacces\b|operation not permitted|\beperm\b`)},
		build:      buildPermissionDenied,
	},
	{
		ErrorType:  PortInUse,
		Category:   "Network",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns: []*regexp.Regexp{
			re(`port (\d{2,5}) is (?:already )?in use`),
			re(`(?:eaddrinuse|address already in use)[^\n]*?:(\d{2,5})\b`),
			re(`listen tcp [^\s]*:(\d{2,5}): bind: address already in use`),
			re(`eaddrinuse|address already in use`),
		},
		build: buildPortInUse,
	},
	{
		ErrorType:  FileNotFound,
		Category:   "File System",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns:   []*regexp.Regexp{re(`no such file or directory|\benoent\b|cannot find the path|file not found`)},
		build:      buildFileNotFound,
	},
	{
		ErrorType:  NotGitRepository,
		Category:   "Git",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns:   []*regexp.Regexp{re(`not a git repository`)},
		build: func(*ruleContext) (string, []string) {
			return "This directory is not inside a Git repository. Change to the repository root or initialize one.",
				[]string{"git init", "git rev-parse --show-toplevel"}
		},
	},
	{
		ErrorType:  MergeConflict,
		Category:   "Git",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns:   []*regexp.Regexp{re(`merge conflict|conflict \(content\)|automatic merge failed|fix conflicts and then commit`)},
		build:      buildMergeConflict,
	},
	{
		ErrorType:  PushRejected,
		Category:   "Git",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns:   []*regexp.Regexp{re(`\[rejected\]|non-fast-forward|failed to push some refs|updates were rejected`)},
		build:      buildPushRejected,
	},
	{
		ErrorType:  MissingScript,
		Category:   "Scripts",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns: []*regexp.Regexp{
			re(`missing script:? ['"]?([\w:.\-]+)['"]?`),
			re(`error command "([^"]+)" not found`),
		},
		build: buildMissingScript,
	},
	{
		ErrorType:  DependencyError,
		Category:   "Dependencies",
		Confidence: shelltypes.ConfidenceMedium,
		Patterns: []*regexp.Regexp{
			re(`npm err!|npm error|\beresolve\b|could not resolve dependency|err_pnpm_|^error .*yarn`),
			re(`no matching distribution found|could not find a version that satisfies`),
			re(`missing go\.sum entry|go: updates to go\.mod needed|verifying module:`),
		},
		build: buildDependencyError,
	},
	{
		ErrorType:  SyntaxError,
		Category:   "Syntax",
		Confidence: shelltypes.ConfidenceMedium,
		Patterns:   []*regexp.Regexp{re(`syntaxerror|syntax error|unexpected token|parse error|unexpected end of (?:input|file)`)},
		build:      buildSyntaxError,
	},
	{
		ErrorType:  NetworkError,
		Category:   "Network",
		Confidence: shelltypes.ConfidenceMedium,
		Patterns: []*regexp.Regexp{re(`\benotfound\b|getaddrinfo|could not resolve host|temporary failure in name resolution|` +
			`\beconnrefused\b|\betimedout\b|network is unreachable|connection refused|connection timed out|no such host`)},
		build: buildNetworkError,
	},
	{
		ErrorType:  CommandNotFound,
		Category:   "Shell",
		Confidence: shelltypes.ConfidenceHigh,
		Patterns: []*regexp.Regexp{
			re(`command not found: ([\w.\-]+)`),
			re(`([\w.\-]+): (?:command )?not found`),
			re(`'([^']+)' is not recognized as an internal or external command`),
			re(`command not found`),
		},
		build: func(c *ruleContext) (string, []string) {
			return commandNotFound(c.group())
		},
	},
}

// Rules returns a copy of the classification table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Patterns = append([]*regexp.Regexp(nil), r.Patterns...)
		out[i] = r
	}
	return out
}

func buildModuleNotFound(c *ruleContext) (string, []string) {
	eco := ecosystemFor(c.command, c.output)
	switch c.pattern {
	case 2, 4:
		eco = ecoPython
	case 3:
		eco = ecoGo
	}

	name := c.group()
	if name == "" {
		return "A required module is missing. Install the project's dependencies.", []string{installAllCommand(eco)}
	}

	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return fmt.Sprintf("The local module '%s' could not be resolved. Check that the file exists and the import path is correct.", name),
			[]string{"ls -la " + shellArg(moduleDir(name))}
	}

	pkg := packageRoot(name, eco)
	install := installCommand(eco, pkg)
	return fmt.Sprintf("The module '%s' is not installed. Install it with: %s", pkg, install),
		[]string{install, installAllCommand(eco)}
}

// moduleDir returns the directory part of a relative or absolute module path
// as written, so "./routes/api" gives "./routes" rather than a cleaned path.
func moduleDir(name string) string {
	i := strings.LastIndex(name, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	default:
		return name[:i]
	}
}

func buildPermissionDenied(c *ruleContext) (string, []string) {
	target := c.find(permissionPathPattern)

	var related []string
	if target != "" {
		related = append(related, "ls -la "+shellArg(target))
	}

	if usesElevation(c.command) {
		related = append(related, "id")
		return "Permission was denied even with elevated privileges. Check the ownership and mode of the target and any security policy in effect.", related
	}

	suggestion := "Permission was denied. Fix the ownership or mode of the target, or rerun with elevated privileges if that is intended."
	if target != "" {
		suggestion = fmt.Sprintf("Permission was denied for '%s'. Fix its ownership or mode, or rerun with elevated privileges if that is intended.", target)
	}
	if strings.TrimSpace(c.command) != "" {
		related = append(related, "sudo "+strings.TrimSpace(c.command))
	}
	return suggestion, related
}

func buildPortInUse(c *ruleContext) (string, []string) {
	port := c.group()
	pid := c.find(pidPattern)

	var related []string
	if pid != "" {
		related = append(related, "kill "+pid)
	}
	if port == "" {
		return "The address is already in use. Stop the process holding the port or configure a different one.", append(related, "lsof -i -P -n")
	}

	related = append(related, "lsof -i :"+port, "kill $(lsof -t -i :"+port+")")
	return fmt.Sprintf("Port %s is already in use. Stop the process listening on port %s or start the server on a different port.", port, port), related
}

func buildFileNotFound(c *ruleContext) (string, []string) {
	target := c.find(filePathPattern)
	if target == "" {
		return "A file or directory referenced by the command does not exist. Check the path and the current working directory.", []string{"pwd", "ls -la"}
	}
	return fmt.Sprintf("The path '%s' does not exist. Check the spelling and the current working directory.", target),
		[]string{"ls -la " + shellArg(path.Dir(target)), "pwd"}
}

func buildMergeConflict(c *ruleContext) (string, []string) {
	related := []string{"git status", "git diff --name-only --diff-filter=U"}
	file := c.find(conflictFilePattern)
	if file != "" {
		related = append(related, "git diff "+shellArg(file))
	}
	related = append(related, "git merge --abort")

	if file != "" {
		return fmt.Sprintf("The merge stopped on a conflict in %s. Resolve the conflict markers, stage the file and commit, or abort the merge.", file), related
	}
	return "The merge stopped on conflicts. Resolve the conflict markers, stage the files and commit, or abort the merge.", related
}

func buildPushRejected(c *ruleContext) (string, []string) {
	branch := c.find(rejectedBranch)
	if branch == "" {
		return "The remote rejected the push because it contains commits you do not have. Integrate them first, then push again.",
			[]string{"git pull --rebase", "git push"}
	}
	return fmt.Sprintf("The remote rejected the push to '%s' because it has commits you do not have. Rebase onto it, then push again.", branch),
		[]string{"git pull --rebase origin " + shellArg(branch), "git push origin " + shellArg(branch)}
}

func buildMissingScript(c *ruleContext) (string, []string) {
	script := c.group()
	runner := "npm run"
	if strings.HasPrefix(strings.TrimSpace(c.command), "yarn") || c.pattern == 1 {
		runner = "yarn run"
	}
	if script == "" {
		return "The requested package script does not exist. List the scripts defined in package.json.", []string{runner}
	}
	return fmt.Sprintf("package.json does not define a '%s' script. Check the available scripts or add it.", script),
		[]string{runner, "cat package.json"}
}

func buildDependencyError(c *ruleContext) (string, []string) {
	eco := ecosystemFor(c.command, c.output)
	switch c.pattern {
	case 1:
		eco = ecoPython
	case 2:
		eco = ecoGo
	}

	switch eco {
	case ecoPython:
		related := []string{"pip install --upgrade pip"}
		if req := pipRequirement(c.command); req != "" {
			related = append(related, "pip index versions "+shellArg(req))
		}
		return "The package manager could not resolve a requirement. Check the package name and version constraints.", related
	case ecoGo:
		return "Module metadata is out of date. Tidy the module graph and retry.", []string{"go mod tidy", "go mod download"}
	}

	if strings.Contains(strings.ToLower(c.output), "eresolve") {
		return "npm could not resolve the dependency tree because of conflicting peer dependencies.",
			[]string{"npm install --legacy-peer-deps", "npm ls"}
	}
	return "The package manager reported an error. Reinstall dependencies from a clean state.",
		[]string{"npm install", "npm cache verify"}
}

func buildSyntaxError(c *ruleContext) (string, []string) {
	m := syntaxLocation.FindStringSubmatch(c.output)
	if m == nil {
		return "The interpreter reported a syntax error. Check the code around the reported location.", nil
	}

	file, line := m[1], m[2]
	if file == "" {
		file, line = m[3], m[4]
	}

	suggestion := fmt.Sprintf("Syntax error in %s at line %s. Fix the code at that location.", file, line)
	switch path.Ext(file) {
	case ".js", ".mjs", ".cjs":
		return suggestion, []string{"node --check " + shellArg(file)}
	case ".py":
		return suggestion, []string{"python3 -m py_compile " + shellArg(file)}
	case ".sh":
		return suggestion, []string{"bash -n " + shellArg(file)}
	case ".go":
		return suggestion, []string{"go vet ./..."}
	case ".json":
		return suggestion, []string{"python3 -m json.tool " + shellArg(file)}
	}
	return suggestion, nil
}

func buildNetworkError(c *ruleContext) (string, []string) {
	host := c.find(hostPattern)
	if host == "" {
		return "A network operation failed. Check connectivity, proxy settings and that the remote service is running.", nil
	}
	return fmt.Sprintf("Could not reach '%s'. Check the host name, DNS and connectivity.", host),
		[]string{"nslookup " + host, "ping -c 3 " + host}
}

func commandNotFound(name string) (string, []string) {
	if name == "" {
		return "The command was not found. Check the spelling and that it is installed and on PATH.", []string{"echo $PATH"}
	}
	return fmt.Sprintf("The command '%s' was not found. Check the spelling and that it is installed and on PATH.", name),
		[]string{"command -v " + shellArg(name), "echo $PATH"}
}
