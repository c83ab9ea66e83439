// Package streamserver serves byte-range MP4 requests and HLS
// playlist/segment/subtitle objects out of the object store.
package streamserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

const (
	// Playlists mutate while a ladder is still building; segments and
	// subtitles are immutable once written.
	playlistCacheControl = "max-age=10"
	segmentCacheControl  = "max-age=31536000, immutable"
)

// TrackResolver resolves a track id to its artifact record. The cached
// track service satisfies this.
type TrackResolver interface {
	GetTrack(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error)
}

// Server resolves tracks and pipes object-store bytes to HTTP responses.
type Server struct {
	tracks TrackResolver
	store  repository.ObjectStorage
	bucket string
}

func New(tracks TrackResolver, store repository.ObjectStorage, bucket string) *Server {
	return &Server{tracks: tracks, store: store, bucket: bucket}
}

// byteRange is a parsed, clamped Range request.
type byteRange struct {
	start int64
	end   int64 // inclusive
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange parses a single "bytes=a-b" range against size. Suffix
// ranges ("bytes=-n") and open ends ("bytes=a-") are supported; multiple
// ranges are not. Returns repository.ErrRangeNotSatisfiable for anything
// that cannot yield at least one byte.
func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, repository.ErrRangeNotSatisfiable
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, repository.ErrRangeNotSatisfiable
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return byteRange{}, repository.ErrRangeNotSatisfiable
	}

	if startStr == "" {
		// Suffix range: last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, repository.ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, repository.ErrRangeNotSatisfiable
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return byteRange{}, repository.ErrRangeNotSatisfiable
		}
	}
	if end > size-1 {
		end = size - 1
	}

	if start > end || start >= size {
		return byteRange{}, repository.ErrRangeNotSatisfiable
	}

	return byteRange{start: start, end: end}, nil
}

// ServeTrack handles a range-required MP4 request. A request with no
// Range header is refused with 416 - the server is range-only so client
// behavior stays predictable.
func (s *Server) ServeTrack(w http.ResponseWriter, r *http.Request, trackID uuid.UUID) {
	track, err := s.tracks.GetTrack(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "track not found", http.StatusNotFound)
			return
		}
		slog.Error("resolve track failed", "track_id", trackID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	key := track.Owner.Prefix() + "/" + track.Name

	info, err := s.store.Head(r.Context(), s.bucket, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		slog.Error("head object failed", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.ContentLength))
		http.Error(w, "range required", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	br, err := parseRange(rangeHeader, info.ContentLength)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.ContentLength))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	body, err := s.store.GetRange(r.Context(), s.bucket, key, br.start, br.end)
	if err != nil {
		slog.Error("ranged get failed", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	contentType := track.Format
	if contentType == "" {
		contentType = "video/mp4"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, info.ContentLength))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.Copy(w, body); err != nil {
		// Client hangups mid-stream are routine.
		slog.Debug("range stream interrupted", "key", key, "error", err)
	}
}

// ServeHLS streams a playlist, segment, or subtitle object. ownerPrefix
// is the owner's object-store prefix ("{filmId}" or "{filmId}-{seasonId}",
// or "subtitles" for the shared subtitle tree); rel is the key below it.
func (s *Server) ServeHLS(w http.ResponseWriter, r *http.Request, ownerPrefix, rel string) {
	rel = path.Clean("/" + rel)[1:] // no escaping the prefix
	if rel == "" || rel == "." {
		http.NotFound(w, r)
		return
	}
	key := ownerPrefix + "/" + rel

	contentType, cacheControl, ok := hlsContentType(rel)
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := s.store.GetRange(r.Context(), s.bucket, key, 0, -1)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("get hls object failed", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)

	if _, err := io.Copy(w, body); err != nil {
		slog.Debug("hls stream interrupted", "key", key, "error", err)
	}
}

// hlsContentType maps a key's extension to its content type and cache
// policy. Unknown extensions are refused rather than guessed.
func hlsContentType(key string) (contentType, cacheControl string, ok bool) {
	switch path.Ext(key) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl", playlistCacheControl, true
	case ".ts":
		return "video/mp2t", segmentCacheControl, true
	case ".vtt":
		return "text/vtt", segmentCacheControl, true
	default:
		return "", "", false
	}
}
