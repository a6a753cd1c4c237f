//go:build !windows

package launcher

import "os/exec"

// shellCommand invokes line through a login shell so the user's PATH
// customisations (nvm, homebrew, ~/.local/bin) are honoured.
func shellCommand(line string) *exec.Cmd {
	return exec.Command("sh", "-lc", line)
}
