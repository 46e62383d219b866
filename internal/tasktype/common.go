package tasktype

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/itskum47/judgeforge/internal/filecacher"
)

// materializeFiles fetches each named file into dir, returning paths in
// filename-sorted order for deterministic compile argv ordering.
func materializeFiles(ctx context.Context, cache *filecacher.FileCacher, files map[string]string, dir string) ([]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		content, err := cache.GetAsBytes(ctx, files[name], filecacher.Gosched)
		if err != nil {
			return nil, fmt.Errorf("tasktype: fetching file %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
