package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	pollInterval   = 250 * time.Millisecond
	maxLineBytes   = 1024 * 1024
	initialLineBuf = 64 * 1024
)

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Offset < 0 returns the last Limit lines; otherwise reading resumes at
	// the byte offset.
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	// Filter drops lines it returns false for. Offsets still advance past them.
	Filter Filter
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit, opts.Filter)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Truncated or rotated under us; start at the new end.
			offset = info.Size()
		}
		result, err = readFrom(path, offset, opts.Filter)
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return waitForLines(ctx, path, result.Offset, opts.Wait, opts.Filter)
	}
	if opts.Limit > 0 && len(result.Lines) > opts.Limit && opts.Offset >= 0 {
		result.Lines = result.Lines[len(result.Lines)-opts.Limit:]
	}
	return result, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuf), maxLineBytes)
	return scanner
}

// lastLines keeps a ring of the newest limit matching lines.
func lastLines(path string, limit int, filter Filter) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	scanner := newScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !filter.Match(line) {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{}, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return TailResult{Lines: lines, Offset: end}, nil
}

// readFrom returns every complete matching line after offset. A trailing
// partial line is left for the next call.
func readFrom(path string, offset int64, filter Filter) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	result := TailResult{Offset: offset}
	reader := bufio.NewReaderSize(file, initialLineBuf)
	for {
		chunk, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read log file: %w", err)
		}
		result.Offset += int64(len(chunk))
		line := trimNewline(chunk)
		if filter.Match(line) {
			result.Lines = append(result.Lines, line)
		}
	}
	return result, nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		next, err := readFrom(path, result.Offset, filter)
		if err != nil {
			return result, err
		}
		result = next
		if len(result.Lines) > 0 || !time.Now().Before(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
