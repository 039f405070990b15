//go:build windows

package daemonctl

import "os/exec"

func detach(*exec.Cmd) {}
