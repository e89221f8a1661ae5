package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// Dir replays the images of a directory in name order
type Dir struct {
	files []string
	next  int
}

// OpenDir lists the images in path
func OpenDir(path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("open image dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return &Dir{files: files}, nil
}

// Len is the number of images found
func (d *Dir) Len() int { return len(d.files) }

func (d *Dir) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.files) {
		return nil, ErrEndOfStream
	}
	path := d.files[d.next]
	d.next++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (d *Dir) Close() error { return nil }
