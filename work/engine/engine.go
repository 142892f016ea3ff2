package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"syscall"

	"sokol-player/work/buffer"
	"sokol-player/work/config"
	"sokol-player/work/logger"
	"sokol-player/work/metrics"
	"sokol-player/work/session"
	"sokol-player/work/utils"

	"github.com/panjf2000/ants/v2"
)

// Mode selects how the external media processor treats the source stream.
type Mode int

const (
	// ModeTranscode re-encodes video and audio into a fragmented MP4 that
	// browsers can play progressively without adaptive-streaming support.
	ModeTranscode Mode = iota
	// ModePassthrough copies the source codecs unchanged into an MPEG
	// transport stream. Cheap, for sources whose codecs are already
	// browser-compatible but whose container or transport is not.
	ModePassthrough
	// ModeWebM re-encodes into WebM (VP8 + Vorbis) for browsers without
	// H.264 support.
	ModeWebM
)

// String returns the mode name used in routes, logs and metrics labels.
func (m Mode) String() string {
	switch m {
	case ModePassthrough:
		return "passthrough"
	case ModeWebM:
		return "webm"
	default:
		return "transcode"
	}
}

// ContentType returns the MIME type of the mode's output container.
func (m Mode) ContentType() string {
	switch m {
	case ModePassthrough:
		return "video/mp2t"
	case ModeWebM:
		return "video/webm"
	default:
		return "video/mp4"
	}
}

// args returns the processing arguments that follow the input spec.
func (m Mode) args() []string {
	switch m {
	case ModePassthrough:
		return []string{"-c", "copy", "-f", "mpegts", "-"}
	case ModeWebM:
		return []string{"-c:v", "libvpx", "-b:v", "1M", "-c:a", "libvorbis", "-f", "webm", "-"}
	default:
		return []string{
			"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency",
			"-c:a", "aac", "-b:a", "128k",
			"-f", "mp4", "-movflags", "frag_keyframe+empty_moov+faststart", "-",
		}
	}
}

// Engine spawns and supervises one ffmpeg subprocess per client stream
// request, piping its stdout to the response. Process lifetime is bound to
// the client connection: a disconnect cancels the request context, which
// terminates the whole process group; if ffmpeg exits first, the response
// simply ends.
type Engine struct {
	Config     *config.Config
	Sessions   *session.Registry
	Workers    *ants.Pool
	BufferPool *buffer.Pool
}

// New creates an Engine. The worker pool drains subprocess stderr so ffmpeg
// never blocks on a full pipe.
func New(cfg *config.Config, sessions *session.Registry, workers *ants.Pool, pool *buffer.Pool) *Engine {
	return &Engine{
		Config:     cfg,
		Sessions:   sessions,
		Workers:    workers,
		BufferPool: pool,
	}
}

// BuildArgs assembles the full ffmpeg argument list for a mode and target
// URL: automatic reconnect on transient upstream drops, the configured player
// identity in the request headers, any configured extra arguments, then the
// mode's processing and output spec writing to stdout.
func (e *Engine) BuildArgs(mode Mode, target string) []string {
	headerBlock := fmt.Sprintf(
		"User-Agent: %s\r\nAccept: */*\r\nConnection: keep-alive\r\n",
		e.Config.PlayerUserAgent,
	)

	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-headers", headerBlock,
	}
	args = append(args, e.Config.FFmpegPreInput...)
	args = append(args, "-i", target)
	args = append(args, e.Config.FFmpegPreOutput...)
	args = append(args, mode.args()...)
	return args
}

// Serve handles one transcoding request: validates the url parameter, spawns
// ffmpeg and pipes its stdout to the client as an unbounded chunked stream.
// A spawn failure surfaces as a 500 because no bytes have been sent yet; any
// later failure just ends the response.
func (e *Engine) Serve(mode Mode, w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		metrics.DeliveryErrors.WithLabelValues(mode.String(), "request").Inc()
		http.Error(w, "Missing URL", http.StatusBadRequest)
		return
	}

	args := e.BuildArgs(mode, target)
	if e.Config.Debug {
		logger.Debug("{engine/engine - Serve} %s: %s %s",
			mode, e.Config.FFmpegPath, strings.Join(args, " "))
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Config.FFmpegPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.DeliveryErrors.WithLabelValues(mode.String(), "spawn").Inc()
		http.Error(w, "FFmpeg error", http.StatusInternalServerError)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		metrics.DeliveryErrors.WithLabelValues(mode.String(), "spawn").Inc()
		http.Error(w, "FFmpeg error", http.StatusInternalServerError)
		return
	}

	if err := cmd.Start(); err != nil {
		metrics.DeliveryErrors.WithLabelValues(mode.String(), "spawn").Inc()
		logger.Error("{engine/engine - Serve} Failed to start %s for %s: %v",
			e.Config.FFmpegPath, utils.LogURL(e.Config, target), err)
		http.Error(w, "FFmpeg error", http.StatusInternalServerError)
		return
	}

	// the whole process group goes down together so ffmpeg's own children
	// never outlive the client connection
	defer func() {
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
		cmd.Wait()
	}()

	e.drainStderr(mode, stderr)

	sess := e.Sessions.Add(mode.String(), utils.LogURL(e.Config, target), r.RemoteAddr)
	defer e.Sessions.Remove(sess)

	w.Header().Set("Content-Type", mode.ContentType())
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	written, err := e.pipe(ctx, w, stdout)
	metrics.BytesDelivered.WithLabelValues(mode.String()).Add(float64(written))

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Debug("{engine/engine - Serve} %s finished for %s after %s",
			mode, r.RemoteAddr, utils.FormatBytes(written))
	default:
		metrics.DeliveryErrors.WithLabelValues(mode.String(), "stream").Inc()
		logger.Debug("{engine/engine - Serve} %s interrupted for %s after %s: %v",
			mode, r.RemoteAddr, utils.FormatBytes(written), err)
	}
}

// drainStderr consumes ffmpeg's diagnostic output on a pooled worker, logging
// each line at debug level. Falls back to a plain goroutine when the pool is
// saturated; the pipe must be drained either way.
func (e *Engine) drainStderr(mode Mode, stderr io.Reader) {
	task := func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) > 200 {
				line = line[:200]
			}
			if e.Config.Debug {
				logger.Debug("{engine/engine - drainStderr} %s: %s", mode, line)
			}
		}
	}
	if err := e.Workers.Submit(task); err != nil {
		go task()
	}
}

// pipe copies subprocess stdout to the client with a pooled buffer, flushing
// per chunk. Returns bytes written and the error that ended the copy, nil on
// EOF (subprocess exit).
func (e *Engine) pipe(ctx context.Context, w http.ResponseWriter, stdout io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)

	buf := e.BufferPool.Get()
	defer e.BufferPool.Put(buf)

	var written int64
	for {
		n, readErr := stdout.Read(buf.B)
		if n > 0 {
			if _, writeErr := w.Write(buf.B[:n]); writeErr != nil {
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
