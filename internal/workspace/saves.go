package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SaveExt is the extension of save files.
const SaveExt = ".sav"

// SaveEntry is one save file found by ListSaves.
type SaveEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListSaves returns the *.sav files directly inside dir, newest first.
// Files with equal modification times are ordered by name.
func ListSaves(dir string) ([]SaveEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var saves []SaveEntry
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), SaveExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		saves = append(saves, SaveEntry{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(saves, func(i, j int) bool {
		if !saves[i].ModTime.Equal(saves[j].ModTime) {
			return saves[i].ModTime.After(saves[j].ModTime)
		}
		return saves[i].Name < saves[j].Name
	})
	return saves, nil
}
