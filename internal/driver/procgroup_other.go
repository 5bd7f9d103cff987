//go:build !unix

package driver

import "os/exec"

// setProcessGroup is a no-op where process groups are not available; only the
// shell itself is killed on cancellation.
func setProcessGroup(cmd *exec.Cmd) {}
