//go:build !unix

package executor

import "os/exec"

func startGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = killDelay
}
