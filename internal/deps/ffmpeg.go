package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// versionProbeTimeout bounds the `ffmpeg -version` call.
const versionProbeTimeout = 5 * time.Second

// CheckFFmpeg resolves the configured capture binary and reads the first
// line of its -version banner.
func CheckFFmpeg(ctx context.Context, command string) Status {
	status := CheckBinaries([]Requirement{{
		Name:        "FFmpeg",
		Command:     command,
		Description: "Records the camera stream into segments",
	}})[0]
	if !status.Available {
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, status.Command, "-version").Output()
	if err != nil {
		status.Available = false
		status.Detail = "version probe failed: " + err.Error()
		return status
	}
	status.Version = firstLine(out)
	return status
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}
