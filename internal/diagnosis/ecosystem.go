package diagnosis

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

type ecosystem int

const (
	ecoNode ecosystem = iota
	ecoPython
	ecoGo
)

// ecosystemFor guesses the package ecosystem from the command first and the
// error signature second. Node is the default.
func ecosystemFor(command, output string) ecosystem {
	switch commandName(command) {
	case "python", "python3", "pip", "pip3", "pytest", "poetry", "pipenv", "uv":
		return ecoPython
	case "go":
		return ecoGo
	case "node", "npm", "npx", "yarn", "pnpm", "bun", "deno", "tsx", "ts-node":
		return ecoNode
	}

	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "traceback (most recent call last)"), strings.Contains(lower, "modulenotfounderror"):
		return ecoPython
	case strings.Contains(lower, "go.mod"), strings.Contains(lower, "go: "):
		return ecoGo
	}
	return ecoNode
}

func installCommand(eco ecosystem, pkg string) string {
	switch eco {
	case ecoPython:
		return "pip install " + shellArg(pkg)
	case ecoGo:
		return "go get " + shellArg(pkg)
	}
	return "npm install " + shellArg(pkg)
}

func installAllCommand(eco ecosystem) string {
	switch eco {
	case ecoPython:
		return "pip install -r requirements.txt"
	case ecoGo:
		return "go mod tidy"
	}
	return "npm install"
}

// packageRoot reduces an import path to the installable package name:
// "lodash/fp" -> "lodash", "@scope/pkg/sub" -> "@scope/pkg", "yaml.parser" -> "yaml".
func packageRoot(name string, eco ecosystem) string {
	switch eco {
	case ecoPython:
		root, _, _ := strings.Cut(name, ".")
		return pythonDistribution(root)
	case ecoGo:
		return name
	}

	parts := strings.Split(name, "/")
	if strings.HasPrefix(name, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// pythonDistribution maps well-known import names to the distribution that
// provides them.
func pythonDistribution(module string) string {
	switch module {
	case "yaml":
		return "pyyaml"
	case "cv2":
		return "opencv-python"
	case "PIL":
		return "pillow"
	case "sklearn":
		return "scikit-learn"
	case "bs4":
		return "beautifulsoup4"
	case "dotenv":
		return "python-dotenv"
	}
	return module
}

// commandName returns the program a command line runs, skipping environment
// assignments and elevation prefixes.
func commandName(command string) string {
	words := commandWords(command)
	for len(words) > 0 && (isAssignment(words[0]) || words[0] == "sudo" || words[0] == "doas" || words[0] == "env") {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// firstToken returns the first word of the command as the shell would see it,
// skipping leading environment assignments.
func firstToken(command string) string {
	words := commandWords(command)
	for len(words) > 0 && isAssignment(words[0]) {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

func commandWords(command string) []string {
	words, err := shellquote.Split(command)
	if err != nil {
		// Unbalanced quotes; whitespace splitting is good enough for a name.
		return strings.Fields(command)
	}
	return words
}

func isAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	return eq > 0 && !strings.ContainsAny(word[:eq], "/-.")
}

func usesElevation(command string) bool {
	words := commandWords(command)
	for len(words) > 0 && isAssignment(words[0]) {
		words = words[1:]
	}
	return len(words) > 0 && (words[0] == "sudo" || words[0] == "doas")
}

// pipRequirement returns the first package argument of a pip install command.
func pipRequirement(command string) string {
	words := commandWords(command)
	for i, w := range words {
		if w != "install" || i == 0 || !strings.HasPrefix(words[i-1], "pip") {
			continue
		}
		for _, arg := range words[i+1:] {
			if !strings.HasPrefix(arg, "-") {
				return arg
			}
		}
	}
	return ""
}

func shellArg(s string) string {
	return shellquote.Join(s)
}
