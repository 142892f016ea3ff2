package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sokol-player/work/buffer"
	"sokol-player/work/config"
	"sokol-player/work/session"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return New(cfg, session.NewRegistry(), pool, buffer.NewPool(32*1024))
}

func TestModeProperties(t *testing.T) {
	assert.Equal(t, "transcode", ModeTranscode.String())
	assert.Equal(t, "passthrough", ModePassthrough.String())
	assert.Equal(t, "webm", ModeWebM.String())

	assert.Equal(t, "video/mp4", ModeTranscode.ContentType())
	assert.Equal(t, "video/mp2t", ModePassthrough.ContentType())
	assert.Equal(t, "video/webm", ModeWebM.ContentType())
}

func TestBuildArgs(t *testing.T) {
	cfg := config.Default()
	e := newTestEngine(t, cfg)

	t.Run("transcode re-encodes into fragmented mp4", func(t *testing.T) {
		args := strings.Join(e.BuildArgs(ModeTranscode, "http://host/ch.ts"), " ")
		assert.Contains(t, args, "-reconnect 1")
		assert.Contains(t, args, "User-Agent: VLC/3.0.18 LibVLC/3.0.18")
		assert.Contains(t, args, "-i http://host/ch.ts")
		assert.Contains(t, args, "-c:v libx264")
		assert.Contains(t, args, "-tune zerolatency")
		assert.Contains(t, args, "-movflags frag_keyframe+empty_moov+faststart")
		assert.True(t, strings.HasSuffix(args, " -"), "output must go to stdout")
	})

	t.Run("passthrough copies codecs into mpegts", func(t *testing.T) {
		args := strings.Join(e.BuildArgs(ModePassthrough, "http://host/ch.ts"), " ")
		assert.Contains(t, args, "-c copy")
		assert.Contains(t, args, "-f mpegts")
		assert.NotContains(t, args, "libx264")
	})

	t.Run("webm re-encodes into vp8 and vorbis", func(t *testing.T) {
		args := strings.Join(e.BuildArgs(ModeWebM, "http://host/ch.ts"), " ")
		assert.Contains(t, args, "-c:v libvpx")
		assert.Contains(t, args, "-c:a libvorbis")
		assert.Contains(t, args, "-f webm")
	})

	t.Run("configured extra args surround the input spec", func(t *testing.T) {
		cfg := config.Default()
		cfg.FFmpegPreInput = []string{"-loglevel", "error"}
		cfg.FFmpegPreOutput = []string{"-map", "0"}
		e := newTestEngine(t, cfg)

		args := strings.Join(e.BuildArgs(ModePassthrough, "http://host/ch.ts"), " ")
		assert.Contains(t, args, "-loglevel error -i http://host/ch.ts -map 0")
	})
}

func TestServeMissingURL(t *testing.T) {
	e := newTestEngine(t, config.Default())
	rec := httptest.NewRecorder()
	e.Serve(ModeTranscode, rec, httptest.NewRequest(http.MethodGet, "/transcode", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSpawnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.FFmpegPath = "/nonexistent/ffmpeg-binary"
	e := newTestEngine(t, cfg)

	rec := httptest.NewRecorder()
	e.Serve(ModeTranscode, rec, httptest.NewRequest(http.MethodGet, "/transcode?url=http://host/ch.ts", nil))

	// spawn failure surfaces as a server error because no bytes were sent
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, e.Sessions.Count())
}

func TestServePipesSubprocessStdout(t *testing.T) {
	// any binary that writes to stdout and exits exercises the supervision
	// path; echo prints the argument list it was handed
	cfg := config.Default()
	cfg.FFmpegPath = "echo"
	e := newTestEngine(t, cfg)

	rec := httptest.NewRecorder()
	e.Serve(ModePassthrough, rec, httptest.NewRequest(http.MethodGet, "/passthrough?url=http://host/ch.ts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "-c copy")
	assert.Equal(t, 0, e.Sessions.Count())
}
