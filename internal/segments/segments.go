// Package segments lists the recorded segment files in the output directory.
//
// Listing is safe to run while the capture process writes into the directory:
// files that disappear between the directory read and the stat are skipped
// rather than reported as errors.
package segments

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File describes one segment on disk.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
	Created time.Time
}

// Name returns the base name of the segment.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Matches reports whether name carries the segment extension ext (".mkv").
// The comparison is case-insensitive.
func Matches(name, ext string) bool {
	if ext == "" {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ext)
}

// Stat returns size and timestamps for path.
func Stat(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return fromInfo(path, info), nil
}

// List returns every matching regular file in dir, oldest creation time first
// with ties broken by path. A missing directory yields an empty list.
func List(dir, ext string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read segment directory: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !Matches(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			// Deleted or rotated away after the listing.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, fromInfo(path, info))
	}
	SortByCreated(files)
	return files, nil
}

// Latest returns the matching file with the greatest modification time.
// The boolean is false when the directory is empty or missing.
func Latest(dir, ext string) (File, bool, error) {
	files, err := List(dir, ext)
	if err != nil || len(files) == 0 {
		return File{}, false, err
	}
	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) ||
			(file.ModTime.Equal(latest.ModTime) && file.Path > latest.Path) {
			latest = file
		}
	}
	return latest, true, nil
}

// SortByCreated orders files by creation time ascending, then by path.
func SortByCreated(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].Created.Equal(files[j].Created) {
			return files[i].Created.Before(files[j].Created)
		}
		return files[i].Path < files[j].Path
	})
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var total int64
	for _, file := range files {
		total += file.Size
	}
	return total
}

func fromInfo(path string, info fs.FileInfo) File {
	return File{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Created: creationTime(path, info),
	}
}
