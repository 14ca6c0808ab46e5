package shellintegration

// Shell kinds with a bundled integration script.
const (
	ShellBash = "bash"
	ShellZsh  = "zsh"
)

// bashScript is used as the --rcfile of spawned bash sessions. The user's
// ~/.bashrc is sourced first so aliases and PATH survive. PS0 marks command
// start, since the DEBUG trap never fires for a bare subshell such as
// "(cd sub && make)"; the arithmetic expansion in PS0 runs in the shell itself
// and sets the flag __sp_post checks. Bash before 4.4 has no PS0 and falls
// back to the DEBUG trap. PROMPT_COMMAND reports the exit code.
const bashScript = `
if [ -z "$SHELLPILOT_NO_USER_RC" ] && [ -f "$HOME/.bashrc" ]; then
    . "$HOME/.bashrc"
fi

bind 'set enable-bracketed-paste off' 2>/dev/null

__sp_at_prompt=0
__sp_started=0
__sp_user_prompt_command="$PROMPT_COMMAND"

__sp_pre() {
    [ "$__sp_at_prompt" = 1 ] || return 0
    case "$BASH_COMMAND" in __sp_*) return 0 ;; esac
    __sp_at_prompt=0
    __sp_started=1
    printf '\033]133;B\007\033]133;C\007'
}

__sp_post() {
    local code=$?
    if [ "$__sp_started" = 1 ]; then
        printf '\033]133;D;%s\007' "$code"
        __sp_started=0
    fi
    if [ -n "$__sp_user_prompt_command" ]; then
        eval "$__sp_user_prompt_command"
    fi
    printf '\033]133;A\007'
    __sp_at_prompt=1
}

if [ "${BASH_VERSINFO[0]}" -gt 4 ] || { [ "${BASH_VERSINFO[0]}" -eq 4 ] && [ "${BASH_VERSINFO[1]}" -ge 4 ]; }; then
    PS0='\e]133;B;$((__sp_started=1))\a\e]133;C\a'
else
    trap '__sp_pre' DEBUG
fi
PROMPT_COMMAND=__sp_post
`

// zshScript is installed as $ZDOTDIR/.zshrc of spawned zsh sessions.
const zshScript = `
if [ -z "$SHELLPILOT_NO_USER_RC" ] && [ -f "$HOME/.zshrc" ]; then
    ZDOTDIR="$HOME" . "$HOME/.zshrc"
fi

unsetopt BEEP
__sp_started=0

__sp_preexec() {
    __sp_started=1
    printf '\033]133;B\007\033]133;C\007'
}

__sp_precmd() {
    local code=$?
    if (( __sp_started )); then
        printf '\033]133;D;%s\007' "$code"
        __sp_started=0
    fi
    printf '\033]133;A\007'
}

autoload -Uz add-zsh-hook
add-zsh-hook preexec __sp_preexec
add-zsh-hook precmd __sp_precmd
`

// Script returns the integration script for a shell kind. Shells without one
// never announce the protocol and end up in fallback mode.
func Script(shellKind string) (string, bool) {
	switch shellKind {
	case ShellBash:
		return bashScript, true
	case ShellZsh:
		return zshScript, true
	default:
		return "", false
	}
}
