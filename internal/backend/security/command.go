package security

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// safeCommandPrefixes are the read-only commands the backend will run
// without further scrutiny. An entry matches the whole command or its
// leading whole words, so multi-word entries such as "git status" pin the
// subcommand too.
var safeCommandPrefixes = []string{
	"ls", "dir", "pwd", "whoami", "date", "echo", "cat", "head", "tail",
	"wc", "grep", "find", "which", "where", "file", "stat", "du", "df",
	"git status", "git log", "git diff", "git branch", "git show",
	"node --version", "npm --version", "python --version", "go version",
}

// dangerousPatterns abort a command regardless of its first token. They
// cover destructive operations, privilege escalation, and shell
// metacharacters that could smuggle a second command.
var dangerousPatterns = []string{
	"rm ", "rmdir", "del ", "format", "mkfs", "dd ",
	"sudo", "su ", "doas",
	"chmod", "chown", "chgrp",
	"shutdown", "reboot", "halt", "poweroff",
	"kill ", "killall", "taskkill",
	">", ">>", "|", ";", "&&", "||", "`", "$(",
	"curl ", "wget ", "nc ", "ncat ",
}

// IsCommandSafe reports whether a terminal command is on the read-only
// allow-list and free of dangerous patterns. The check is conservative: an
// unknown command is unsafe.
func IsCommandSafe(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)

	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}

	for _, prefix := range safeCommandPrefixes {
		if lower == prefix || strings.HasPrefix(lower, prefix+" ") {
			return true
		}
	}
	return false
}

// ExecuteTerminalCommand runs a user-confirmed command through the platform
// shell and returns its combined output. Commands that fail IsCommandSafe
// are refused before anything is spawned.
func ExecuteTerminalCommand(ctx context.Context, command string) (string, error) {
	if !IsCommandSafe(command) {
		return "", fmt.Errorf("command rejected by safety policy: %q", command)
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("command %q failed: %w: %s", command, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
