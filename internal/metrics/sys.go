package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// LocalHealth describes the client's local state for the stats command.
type LocalHealth struct {
	AllocMB    uint64
	Goroutines int
	Files      []FileUsage
}

// FileUsage is the on-disk size of one local state file.
type FileUsage struct {
	Path string
	Size string
}

// GetLocalHealth collects process memory and the size of each local state file.
// The sqlite write-ahead log is counted with its database.
func GetLocalHealth(paths ...string) LocalHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := LocalHealth{
		AllocMB:    m.Alloc / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		var size int64
		for _, candidate := range []string{p, p + "-wal", p + "-shm"} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				size += info.Size()
			}
		}
		h.Files = append(h.Files, FileUsage{Path: filepath.Clean(p), Size: formatSize(size)})
	}
	return h
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
