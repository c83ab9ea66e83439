// Package cleanup deletes a job's local scratch artifacts once the job
// reaches a terminal state. Every removal is best-effort and idempotent:
// a path that is already gone never fails a successful job.
package cleanup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/filmdist/ingest/internal/domain/model"
)

// Sweeper removes the uploads/{name}.* family a job owns.
type Sweeper struct {
	uploadDir string
}

func New(uploadDir string) *Sweeper {
	return &Sweeper{uploadDir: uploadDir}
}

// Sweep removes the chunk folder, the combined source, every rung MP4,
// every hls_* variant folder, and any segments_* scratch left for
// sanitizedName (the full file name, e.g. "movie.mp4"; rung artifacts
// are named after its extension-less base). Errors are logged and
// swallowed.
func (s *Sweeper) Sweep(sanitizedName string) {
	if sanitizedName == "" {
		return
	}
	baseName := strings.TrimSuffix(sanitizedName, filepath.Ext(sanitizedName))

	paths := []string{
		filepath.Join(s.uploadDir, "chunks", sanitizedName),
		filepath.Join(s.uploadDir, sanitizedName),
	}
	for _, res := range model.DefaultLadder() {
		label := string(res)
		paths = append(paths,
			filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s.mp4", label, baseName)),
			filepath.Join(s.uploadDir, fmt.Sprintf("hls_%s_%s", label, baseName)),
		)
	}
	paths = append(paths, s.scratchDirs(baseName)...)

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("cleanup: remove failed", "path", p, "error", err)
		}
	}
}

// scratchDirs lists segments_* directories tied to baseName.
func (s *Sweeper) scratchDirs(baseName string) []string {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "segments_") && strings.Contains(e.Name(), baseName) {
			dirs = append(dirs, filepath.Join(s.uploadDir, e.Name()))
		}
	}
	return dirs
}
