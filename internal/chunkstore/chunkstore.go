// Package chunkstore buffers partial uploads on local disk and reassembles
// them into a single source file once every chunk has arrived.
package chunkstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/filmdist/ingest/internal/domain/repository"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9._-]+`)

// Sanitize strips path separators, lowercases, and collapses anything
// that isn't alphanumeric/dot/dash/underscore into a single underscore.
func Sanitize(originalName string) string {
	name := filepath.Base(originalName)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = nonAlnum.ReplaceAllString(name, "_")
	return name
}

// Store manages the uploads/chunks/{sanitizedName}/ folders.
type Store struct {
	root string // uploads dir root
}

func New(uploadDir string) *Store {
	return &Store{root: uploadDir}
}

func (s *Store) chunkDir(sanitizedName string) string {
	return filepath.Join(s.root, "chunks", sanitizedName)
}

func (s *Store) chunkPath(sanitizedName string, startByte int64) string {
	return filepath.Join(s.chunkDir(sanitizedName), strconv.FormatInt(startByte, 10))
}

// SourcePath returns the path Combine will write the reassembled file to.
func (s *Store) SourcePath(sanitizedName string) string {
	return filepath.Join(s.root, sanitizedName)
}

// SaveChunk sanitizes originalName, creates the chunk folder lazily, and
// writes the chunk atomically via a temp file + rename.
func (s *Store) SaveChunk(originalName string, startByte int64, data io.Reader) (string, error) {
	sanitized := Sanitize(originalName)
	dir := s.chunkDir(sanitized)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("chunkstore: create dir: %w", err)
	}

	dest := s.chunkPath(sanitized, startByte)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("chunkstore: create temp chunk: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("chunkstore: write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chunkstore: close chunk: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chunkstore: rename chunk: %w", err)
	}
	return dest, nil
}

// HasChunk reports whether a chunk at startByte has already been saved.
func (s *Store) HasChunk(originalName string, startByte int64) bool {
	_, err := os.Stat(s.chunkPath(Sanitize(originalName), startByte))
	return err == nil
}

// Combine streams chunks in ascending offset order into the output path,
// deleting each chunk after a successful copy, then removes the empty
// folder. Fails with repository.ErrChunkMissing if the first offset isn't
// 0 -- contiguity beyond that is the caller's responsibility.
func (s *Store) Combine(originalName string) (string, error) {
	sanitized := Sanitize(originalName)
	dir := s.chunkDir(sanitized)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("chunkstore: read chunk dir: %w", err)
	}

	type chunkFile struct {
		start int64
		name  string
	}
	var chunks []chunkFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		start, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunkFile{start: start, name: e.Name()})
	}
	if len(chunks) == 0 {
		return "", repository.ErrChunkMissing
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].start < chunks[j].start })
	if chunks[0].start != 0 {
		return "", repository.ErrChunkMissing
	}

	outPath := s.SourcePath(sanitized)
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("chunkstore: create output: %w", err)
	}
	defer out.Close()

	for _, c := range chunks {
		if err := appendChunk(out, filepath.Join(dir, c.name)); err != nil {
			return "", err
		}
	}

	for _, c := range chunks {
		os.Remove(filepath.Join(dir, c.name))
	}
	os.Remove(dir)

	return outPath, nil
}

func appendChunk(out io.Writer, chunkPath string) error {
	f, err := os.Open(chunkPath)
	if err != nil {
		return fmt.Errorf("chunkstore: open chunk %s: %w", chunkPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("chunkstore: copy chunk %s: %w", chunkPath, err)
	}
	return nil
}

// DiscardSet best-effort deletes a chunk folder; errors are swallowed.
func (s *Store) DiscardSet(originalName string) {
	os.RemoveAll(s.chunkDir(Sanitize(originalName)))
}
