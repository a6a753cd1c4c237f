//go:build windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// createNoWindow suppresses the console window that cmd would otherwise
// flash when the desktop app spawns an agent.
const createNoWindow = 0x08000000

// shellCommand invokes line through cmd so PATH and PATHEXT resolution
// match what the user gets in a terminal. Python-based CLIs buffer stdout
// aggressively on Windows, which would stall the line-oriented protocol;
// PYTHONUNBUFFERED disables that.
func shellCommand(line string) *exec.Cmd {
	cmd := exec.Command("cmd", "/C", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNoWindow,
		HideWindow:    true,
	}
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	return cmd
}
