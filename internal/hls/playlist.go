// Package hls builds HLS master and variant playlists and handles the
// atomic master-playlist replace.
package hls

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// CompletedRung is one ladder rung that has finished uploading.
type CompletedRung struct {
	Resolution  model.Resolution
	Width       int
	Height      int
	PlaylistKey string // relative to the master, e.g. "hls_HD_movie/HD_movie.m3u8"
}

// SubtitleEntry feeds the #EXT-X-MEDIA lines.
type SubtitleEntry struct {
	Language  string
	Label     string
	IsDefault bool
	URI       string
}

// BuildMaster renders the master playlist contents: subtitle group first,
// then one #EXT-X-STREAM-INF per rung in ascending bandwidth.
func BuildMaster(rungs []CompletedRung, subtitles []SubtitleEntry) string {
	sorted := make([]CompletedRung, len(rungs))
	copy(sorted, rungs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Resolution.TotalBitrateBps() < sorted[j].Resolution.TotalBitrateBps()
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	hasSubtitles := len(subtitles) > 0
	for _, s := range subtitles {
		def := "NO"
		if s.IsDefault {
			def = "YES"
		}
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"subs\",LANGUAGE=%q,NAME=%q,DEFAULT=%s,URI=%q\n",
			s.Language, s.Label, def, s.URI)
	}

	for _, r := range sorted {
		subsAttr := ""
		if hasSubtitles {
			subsAttr = `,SUBTITLES="subs"`
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d%s\n",
			r.Resolution.TotalBitrateBps(), r.Width, r.Height, subsAttr)
		b.WriteString(r.PlaylistKey)
		b.WriteString("\n")
	}

	return b.String()
}

// MasterKey returns the object key for an owner's master playlist.
func MasterKey(baseName string) string {
	return "master_" + baseName + ".m3u8"
}

// VariantDir returns the object-key prefix for a rung's HLS variant.
func VariantDir(resolution model.Resolution, baseName string) string {
	return fmt.Sprintf("hls_%s_%s", resolution, baseName)
}

// VariantPlaylistKey returns the object key (relative to the owner
// prefix) of a rung's variant playlist.
func VariantPlaylistKey(resolution model.Resolution, baseName string) string {
	label := string(resolution)
	return fmt.Sprintf("%s/%s_%s.m3u8", VariantDir(resolution, baseName), label, baseName)
}

// Publisher rebuilds and atomically swaps the master playlist for an
// owner: write to a temp key, then copy-over, so readers never observe a
// truncated manifest.
type Publisher struct {
	store  repository.ObjectStorage
	bucket string
}

func NewPublisher(store repository.ObjectStorage, bucket string) *Publisher {
	return &Publisher{store: store, bucket: bucket}
}

// Publish renders and atomically replaces master_{baseName}.m3u8 under
// ownerPrefix.
func (p *Publisher) Publish(ctx context.Context, ownerPrefix, baseName string, rungs []CompletedRung, subtitles []SubtitleEntry) error {
	content := BuildMaster(rungs, subtitles)
	finalKey := ownerPrefix + "/" + MasterKey(baseName)
	tmpKey := finalKey + ".tmp-" + strconv.FormatInt(int64(len(content)), 10)

	if _, err := p.store.PutMultipart(ctx, repository.PutMultipartInput{
		Bucket:      p.bucket,
		Key:         tmpKey,
		Body:        strings.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "application/vnd.apple.mpegurl",
	}); err != nil {
		return fmt.Errorf("hls: write temp master: %w", err)
	}

	if err := p.store.Copy(ctx, p.bucket, tmpKey, finalKey); err != nil {
		return fmt.Errorf("hls: swap master: %w", err)
	}

	_ = p.store.Delete(ctx, p.bucket, tmpKey)
	return nil
}
