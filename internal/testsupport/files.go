package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A negative size writes an empty file.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteSegments creates one file per size in dir, in order, pausing between
// files so creation timestamps are distinct. Names sort in creation order.
func WriteSegments(t testing.TB, dir, ext string, sizes ...int64) []string {
	t.Helper()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	paths := make([]string, len(sizes))
	for i, size := range sizes {
		name := base.Add(time.Duration(i)*time.Hour).Format("2006-01-02_15-04-05") + ext
		paths[i] = filepath.Join(dir, name)
		WriteFile(t, paths[i], size)
		time.Sleep(2 * time.Millisecond)
	}
	return paths
}
