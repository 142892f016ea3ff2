package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sokol-player/work/client"
	"sokol-player/work/config"
	"sokol-player/work/logger"
	"sokol-player/work/utils"

	"github.com/grafov/m3u8"
	"github.com/maypok86/otter/v2"
)

// Kind classifies what a source URL serves, which decides the initial
// delivery mode: adaptive sources go to the HLS client library, native
// sources straight to the video element, unknown sources to transcoding.
type Kind string

const (
	// KindAdaptive means the URL serves an HLS playlist (master or media).
	KindAdaptive Kind = "adaptive"
	// KindNative means the URL serves a raw media container.
	KindNative Kind = "native"
	// KindUnknown means the source could not be classified.
	KindUnknown Kind = "unknown"
)

// Result is one probe verdict.
type Result struct {
	Kind        Kind   `json:"kind"`
	Variants    int    `json:"variants,omitempty"`    // variant count for HLS master playlists
	ContentType string `json:"contentType,omitempty"` // upstream Content-Type, when sent
}

const (
	probeTimeout  = 10 * time.Second
	probeHeadSize = 256 * 1024
)

// Prober fetches the head of a source URL and classifies it. Verdicts are
// cached with a short TTL: probes run ahead of every playback attempt and
// IPTV sources do not change shape between zaps.
type Prober struct {
	config     *config.Config
	httpClient *client.HeaderSettingClient
	cache      *otter.Cache[string, Result]
}

// New creates a Prober with its verdict cache.
func New(cfg *config.Config, hc *client.HeaderSettingClient) (*Prober, error) {
	cache, err := otter.New(&otter.Options[string, Result]{
		MaximumSize:      cfg.ProbeCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, Result](cfg.ProbeCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("creating probe cache: %w", err)
	}
	return &Prober{
		config:     cfg,
		httpClient: hc,
		cache:      cache,
	}, nil
}

// Probe classifies the source at target, serving a cached verdict when one
// is fresh. Fetch failures yield KindUnknown with the error; the caller
// decides how conservative to be.
func (p *Prober) Probe(ctx context.Context, target string) (Result, error) {
	if res, ok := p.cache.GetIfPresent(target); ok {
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Kind: KindUnknown}, fmt.Errorf("building probe request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{Kind: KindUnknown}, fmt.Errorf("probing %s: %w", utils.LogURL(p.config, target), err)
	}
	defer resp.Body.Close()

	head, err := io.ReadAll(io.LimitReader(resp.Body, probeHeadSize))
	if err != nil && len(head) == 0 {
		return Result{Kind: KindUnknown}, fmt.Errorf("reading probe head: %w", err)
	}

	res := classify(resp.Header.Get("Content-Type"), head)
	p.cache.Set(target, res)

	logger.Debug("{probe/probe - Probe} %s classified as %s (%d variants)",
		utils.LogURL(p.config, target), res.Kind, res.Variants)
	return res, nil
}

// classify decides the verdict from the upstream content type and the first
// bytes of the body. HLS is recognized by content type or the #EXTM3U magic
// and confirmed by decoding; everything else that looks like media bytes is
// native.
func classify(contentType string, head []byte) Result {
	res := Result{Kind: KindUnknown, ContentType: contentType}

	ct := strings.ToLower(contentType)
	looksHLS := strings.Contains(ct, "mpegurl") ||
		strings.Contains(ct, "m3u8") ||
		bytes.HasPrefix(bytes.TrimSpace(head), []byte("#EXTM3U"))

	if looksHLS {
		playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(bytes.NewReader(head)), false)
		if err == nil {
			res.Kind = KindAdaptive
			if listType == m3u8.MASTER {
				if master, ok := playlist.(*m3u8.MasterPlaylist); ok {
					res.Variants = len(master.Variants)
				}
			}
			return res
		}
		// claimed to be a playlist but does not decode; fall through
	}

	if strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/") || len(head) > 0 {
		res.Kind = KindNative
	}
	return res
}
