package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"sokol-player/work/catalog"
	"sokol-player/work/engine"
	"sokol-player/work/fallback"
	"sokol-player/work/logger"
	"sokol-player/work/metrics"
	"sokol-player/work/probe"
	"sokol-player/work/relay"
	"sokol-player/work/session"
	"sokol-player/work/store"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("{handlers/handlers - writeJSON} Encoding response: %v", err)
	}
}

// HandleCategories serves the three group-name listings.
func HandleCategories(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.CatalogQueries.WithLabelValues("categories").Inc()
		writeJSON(w, http.StatusOK, svc.ListCategories())
	}
}

// HandleItems serves the entries of one bucket, optionally filtered to a
// group ("__ALL__" for unfiltered).
func HandleItems(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		metrics.CatalogQueries.WithLabelValues("items").Inc()
		writeJSON(w, http.StatusOK, svc.ListItems(vars["type"], vars["group"]))
	}
}

// HandleShows serves the reconstructed show/season/episode tree for a group.
func HandleShows(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		metrics.CatalogQueries.WithLabelValues("shows").Inc()
		writeJSON(w, http.StatusOK, svc.ListShows(vars["group"]))
	}
}

// HandleStream proxies an upstream media URL to the client.
func HandleStream(rl *relay.Relay) http.HandlerFunc {
	return rl.ServeStream
}

// HandleEngine serves one subprocess-backed delivery mode.
func HandleEngine(e *engine.Engine, mode engine.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e.Serve(mode, w, r)
	}
}

// probeResponse is the probe verdict plus the delivery state a player should
// start in for a source of that kind.
type probeResponse struct {
	probe.Result
	Suggested string `json:"suggested"`
}

// HandleProbe classifies an upstream source URL for delivery-mode selection.
// Classification failures still answer 200 with an unknown verdict; the
// suggested state for an unknown source is the conservative one.
func HandleProbe(p *probe.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "Missing URL", http.StatusBadRequest)
			return
		}
		res, err := p.Probe(r.Context(), target)
		if err != nil {
			logger.Debug("{handlers/handlers - HandleProbe} Probe failed: %v", err)
		}
		suggested := fallback.Initial(res.Kind == probe.KindAdaptive, res.Kind == probe.KindNative)
		writeJSON(w, http.StatusOK, probeResponse{Result: res, Suggested: suggested.String()})
	}
}

// HandleSessions lists the currently active delivery sessions.
func HandleSessions(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Snapshot())
	}
}

// HandleUpload accepts a multipart playlist upload and replaces the backing
// file wholesale.
func HandleUpload(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file"})
			return
		}
		defer file.Close()

		if err := st.ReplacePlaylist(file); err != nil {
			logger.Error("{handlers/handlers - HandleUpload} Replacing playlist: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// HandleUploadText accepts either a playlist URL or inline playlist text in a
// JSON body and replaces the backing file.
func HandleUploadText(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Playlist string `json:"playlist"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty"})
			return
		}
		payload := strings.TrimSpace(body.Playlist)
		if payload == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty"})
			return
		}

		var err error
		if isHTTPURL(payload) {
			err = st.ReplacePlaylistFromURL(r.Context(), payload)
		} else {
			err = st.ReplacePlaylist(strings.NewReader(payload))
		}
		if err != nil {
			logger.Error("{handlers/handlers - HandleUploadText} Replacing playlist: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// HandlePlaylistDownload serves the backing playlist file.
func HandlePlaylistDownload(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(st.PlaylistPath()); err != nil {
			http.Error(w, "No playlist", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		http.ServeFile(w, r, st.PlaylistPath())
	}
}

// HandleEPGUpload accepts either an EPG URL or inline XML content and
// replaces the backing EPG file.
func HandleEPGUpload(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EPGURL     string `json:"epgUrl"`
			EPGContent string `json:"epgContent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No EPG data provided"})
			return
		}

		switch {
		case isHTTPURL(body.EPGURL):
			if err := st.ReplaceEPGFromURL(r.Context(), body.EPGURL); err != nil {
				logger.Error("{handlers/handlers - HandleEPGUpload} Fetching EPG: %v", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save EPG"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "source": "url"})
		case body.EPGContent != "":
			if err := st.ReplaceEPG(strings.NewReader(body.EPGContent)); err != nil {
				logger.Error("{handlers/handlers - HandleEPGUpload} Saving EPG: %v", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save EPG"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "source": "content"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No EPG data provided"})
		}
	}
}

// HandleEPG serves the raw EPG document; the client parses it. An empty JSON
// object when none has been uploaded, matching the empty-catalog convention.
func HandleEPG(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(st.EPGPath()); err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		http.ServeFile(w, r, st.EPGPath())
	}
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
