package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

// sourceDialTimeout bounds the camera reachability probe.
const sourceDialTimeout = 5 * time.Second

var defaultPorts = map[string]string{
	"rtsp":  "554",
	"rtsps": "322",
	"rtmp":  "1935",
	"http":  "80",
	"https": "443",
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// SourceAddress derives host:port from a stream URL, filling in the
// scheme's well-known port.
func SourceAddress(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("source url not configured")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("source url %q has no host", u.Redacted())
	}
	port := u.Port()
	if port == "" {
		port = defaultPorts[strings.ToLower(u.Scheme)]
	}
	if port == "" {
		return "", fmt.Errorf("no default port for scheme %q", u.Scheme)
	}
	return net.JoinHostPort(host, port), nil
}

// CheckSource opens and closes a TCP connection to the camera.
func CheckSource(ctx context.Context, sourceURL string) Result {
	const name = "Camera"

	addr, err := SourceAddress(sourceURL)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	dialCtx, cancel := context.WithTimeout(ctx, sourceDialTimeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(addr, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
}

func summarizeDialError(addr string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s unreachable (timed out)", addr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s unreachable (timed out)", addr)
	}
	return fmt.Sprintf("%s unreachable (%v)", addr, err)
}
