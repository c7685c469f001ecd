package tubetap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NewestFile returns the path of the most recently modified regular file in dir whose extension is one of exts
// (case-insensitive), or "" if there is none.
//
// This is a heuristic: other downloads writing into the same directory can make it pick the wrong file.
func NewestFile(dir string, exts []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	accepted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		accepted[strings.ToLower(ext)] = struct{}{}
	}

	var newestPath string
	var newestTime time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := accepted[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		if newestPath == "" || info.ModTime().After(newestTime) {
			newestPath = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newestPath, nil
}
