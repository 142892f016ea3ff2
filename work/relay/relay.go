package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"sokol-player/work/buffer"
	"sokol-player/work/client"
	"sokol-player/work/config"
	"sokol-player/work/logger"
	"sokol-player/work/metrics"
	"sokol-player/work/session"
	"sokol-player/work/utils"

	"go.uber.org/ratelimit"
)

// Relay forwards a client request for a source URL to the origin server,
// presenting the configured legacy player identity, and streams the response
// body back unmodified. It is deliberately a dumb pipe: whatever status and
// bytes the origin sends are what the client gets, because many IPTV origins
// return perfectly playable bodies on unconventional statuses.
type Relay struct {
	Config     *config.Config
	HttpClient *client.HeaderSettingClient
	Sessions   *session.Registry
	BufferPool *buffer.Pool

	limiterMu sync.Mutex
	limiters  map[string]ratelimit.Limiter
}

// New creates a Relay with per-host upstream rate limiting and pooled copy
// buffers.
func New(cfg *config.Config, hc *client.HeaderSettingClient, sessions *session.Registry, pool *buffer.Pool) *Relay {
	return &Relay{
		Config:     cfg,
		HttpClient: hc,
		Sessions:   sessions,
		BufferPool: pool,
		limiters:   make(map[string]ratelimit.Limiter),
	}
}

// limiterFor returns the rate limiter for an upstream host, creating it on
// first contact. Limiting connection attempts per host keeps a flapping
// client from hammering a single origin with reconnects.
func (rl *Relay) limiterFor(host string) ratelimit.Limiter {
	rl.limiterMu.Lock()
	defer rl.limiterMu.Unlock()

	if lim, ok := rl.limiters[host]; ok {
		return lim
	}
	lim := ratelimit.New(rl.Config.UpstreamRatePerHost)
	rl.limiters[host] = lim
	return rl.limiters[host]
}

// ServeStream handles one proxied playback request. Query parameters:
// url (required), plus optional ua, referer and origin header overrides.
//
// The upstream request is bound to the client request context, so a client
// disconnect cancels the upstream read and releases the socket immediately.
// Upstream status codes are forwarded as-is, including errors.
func (rl *Relay) ServeStream(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		metrics.DeliveryErrors.WithLabelValues("proxy", "request").Inc()
		http.Error(w, "Missing URL", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		metrics.DeliveryErrors.WithLabelValues("proxy", "request").Inc()
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}

	rl.limiterFor(parsed.Host).Take()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		metrics.DeliveryErrors.WithLabelValues("proxy", "request").Inc()
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}

	// per-request identity overrides take precedence over the configured one
	if ua := r.URL.Query().Get("ua"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if referer := r.URL.Query().Get("referer"); referer != "" {
		req.Header.Set("Referer", referer)
	}
	if origin := r.URL.Query().Get("origin"); origin != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := rl.HttpClient.Do(req)
	if err != nil {
		metrics.DeliveryErrors.WithLabelValues("proxy", "upstream").Inc()
		logger.Error("{relay/relay - ServeStream} Upstream request failed for %s: %v",
			utils.LogURL(rl.Config, target), err)
		http.Error(w, "Stream error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	sess := rl.Sessions.Add("proxy", utils.LogURL(rl.Config, target), r.RemoteAddr)
	defer rl.Sessions.Remove(sess)

	copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	if rl.Config.Debug {
		logger.Debug("{relay/relay - ServeStream} Relaying %s for %s (upstream status %d)",
			utils.LogURL(rl.Config, target), r.RemoteAddr, resp.StatusCode)
	}

	written, err := rl.pipe(r.Context(), w, resp.Body)
	metrics.BytesDelivered.WithLabelValues("proxy").Add(float64(written))

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Debug("{relay/relay - ServeStream} Stream finished for %s after %s",
			r.RemoteAddr, utils.FormatBytes(written))
	default:
		metrics.DeliveryErrors.WithLabelValues("proxy", "stream").Inc()
		logger.Debug("{relay/relay - ServeStream} Stream interrupted for %s after %s: %v",
			r.RemoteAddr, utils.FormatBytes(written), err)
	}
}

// copyHeaders forwards the headers playback clients rely on and pins the
// permissive CORS and no-caching policy. An absent upstream Content-Type
// defaults to MPEG transport stream, the usual IPTV payload.
func copyHeaders(w http.ResponseWriter, resp *http.Response) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp2t"
	}
	w.Header().Set("Content-Type", contentType)

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		w.Header().Set("Content-Range", cr)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}

	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Cache-Control", "no-cache, no-store")
}

// pipe copies upstream bytes to the client with a pooled buffer, flushing
// after every chunk so playback starts without waiting on internal buffering.
// Returns the byte count and the error that ended the copy, nil on EOF.
func (rl *Relay) pipe(ctx context.Context, w http.ResponseWriter, body io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)

	buf := rl.BufferPool.Get()
	defer rl.BufferPool.Put(buf)

	var written int64
	for {
		n, readErr := body.Read(buf.B)
		if n > 0 {
			if _, writeErr := w.Write(buf.B[:n]); writeErr != nil {
				// client went away; the deferred body close releases upstream
				return written, writeErr
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, readErr
		}
	}
}
