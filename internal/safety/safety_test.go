package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		safe       bool
		reasonPart string
	}{
		{name: "plain listing", command: "ls -la", safe: true},
		{name: "git status", command: "git status", safe: true},
		{name: "compound allow-listed", command: "npm install && npm test", safe: true},
		{name: "root delete", command: "rm -rf /", reasonPart: "Dangerous command detected"},
		{name: "root delete with sudo", command: "sudo rm -rf /", reasonPart: "Dangerous command detected"},
		{name: "home delete", command: "rm -rf ~", reasonPart: "home directory"},
		{name: "home delete via variable", command: "rm -rf $HOME", reasonPart: "home directory"},
		{name: "root wildcard", command: "rm -rf /*", reasonPart: "Dangerous command detected"},
		{name: "home wildcard", command: "rm -fr ~/*", reasonPart: "root-level wildcard"},
		{name: "split flags", command: "rm -r -f /", reasonPart: "Dangerous command detected"},
		{name: "long options", command: "rm --recursive --force /", reasonPart: "root or home directory"},
		{name: "long options reversed", command: "rm --force --recursive ~", reasonPart: "root or home directory"},
		{name: "mixed long and short options", command: "rm -v --recursive -f /*", reasonPart: "Dangerous command detected"},
		{name: "home delete via braced variable", command: "rm -rf ${HOME}", reasonPart: "home directory"},
		{name: "braced home with long options", command: "rm --force -r ${HOME}/", reasonPart: "root or home directory"},
		{name: "root spelled with dot", command: "rm -rf /.", reasonPart: "root or home directory"},
		{name: "root spelled with double slash", command: "rm -rf //", reasonPart: "root or home directory"},
		{name: "home spelled with dot", command: "rm -rf ~/.", reasonPart: "root or home directory"},
		{name: "later segment", command: "cd /tmp && rm --recursive --force $HOME", reasonPart: "root or home directory"},
		{name: "long options on scoped path", command: "rm --recursive --force /tmp/build", safe: true},
		{name: "recursive without force", command: "rm --recursive ./dist", safe: true},
		{name: "fork bomb", command: ":(){ :|:& };:", reasonPart: "fork bomb"},
		{name: "dd to disk", command: "dd if=/dev/zero of=/dev/sda bs=1M", reasonPart: "raw write"},
		{name: "mkfs", command: "mkfs.ext4 /dev/sdb1", reasonPart: "filesystem formatting"},
		{name: "redirect to disk", command: "cat image.iso > /dev/sdb", reasonPart: "Dangerous command detected"},
		{name: "extra whitespace", command: "rm   -rf    /", reasonPart: "Dangerous command detected"},
		{name: "scoped delete is fine", command: "rm -rf /tmp/build", safe: true},
		{name: "relative delete is fine", command: "rm -rf node_modules", safe: true},
		{name: "quoted in commit message", command: `git commit -m "rm -rf /"`, safe: true},
		{name: "single quoted echo", command: `echo 'mkfs.ext4 /dev/sda'`, safe: true},
		{name: "quoted fork bomb", command: `echo ":(){ :|:& };:"`, safe: true},
		{name: "risky keyword outside allow-list", command: "wipefs -a /tmp/img", reasonPart: "Risky operation detected"},
		{name: "risky device read", command: "hexdump /dev/nvme0n1", reasonPart: "raw disk device"},
		{name: "allow-listed pipeline into unknown tool", command: "ls | xargs shred", reasonPart: "Risky operation detected"},
		{name: "empty", command: "   ", safe: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Classify(tt.command)
			assert.Equal(t, tt.safe, verdict.Safe, "reason: %s", verdict.Reason)
			if !tt.safe {
				assert.Contains(t, verdict.Reason, tt.reasonPart)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	commands := []string{"rm -rf /", "ls -la", `git commit -m "rm -rf /"`, "dd of=/dev/sda", "make build"}
	for _, command := range commands {
		first := Classify(command)
		for i := 0; i < 50; i++ {
			assert.Equal(t, first, Classify(command), command)
		}
	}
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `echo "hello world"`, want: `echo ""`},
		{in: `echo 'a' "b"`, want: `echo '' ""`},
		{in: `echo "escaped \" quote" done`, want: `echo "" done`},
		{in: `echo it\'s`, want: `echo it\'s`},
		{in: `echo "unterminated`, want: `echo "unterminated`},
		{in: `no quotes`, want: `no quotes`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQuoted(tt.in))
		})
	}
}
