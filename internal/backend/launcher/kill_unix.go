//go:build !windows

package launcher

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// KillPID force-kills a process by pid. A process that is already gone
// ("no such process") counts as success so terminate stays idempotent.
func KillPID(pid int) error {
	output, err := exec.Command("kill", "-9", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		if strings.Contains(strings.ToLower(string(output)), "no such process") {
			return nil
		}
		return fmt.Errorf("kill process %d: %w: %s", pid, err, strings.TrimSpace(string(output)))
	}
	return nil
}
