package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"sokol-player/work/client"
	"sokol-player/work/logger"
)

// Store owns the two backing files the server persists: the playlist and the
// EPG document. Both are replaced wholesale, never edited in place; readers
// only ever observe a complete old or complete new file because each replace
// writes a temp file and renames it over the target.
type Store struct {
	dir        string
	httpClient *client.HeaderSettingClient
}

const (
	playlistName = "playlist.m3u"
	epgName      = "epg.xml"

	fetchTimeout = 30 * time.Second
	maxFetchSize = 1000 * 1024 * 1024
)

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, hc *client.HeaderSettingClient) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir, httpClient: hc}, nil
}

// PlaylistPath returns the absolute path of the backing playlist file.
func (s *Store) PlaylistPath() string {
	return filepath.Join(s.dir, playlistName)
}

// EPGPath returns the absolute path of the backing EPG file.
func (s *Store) EPGPath() string {
	return filepath.Join(s.dir, epgName)
}

// ReplacePlaylist replaces the backing playlist with the contents of r.
func (s *Store) ReplacePlaylist(r io.Reader) error {
	return s.replace(s.PlaylistPath(), r)
}

// ReplaceEPG replaces the backing EPG document with the contents of r.
func (s *Store) ReplaceEPG(r io.Reader) error {
	return s.replace(s.EPGPath(), r)
}

// ReplacePlaylistFromURL fetches a playlist from url and replaces the backing
// file with the response body.
func (s *Store) ReplacePlaylistFromURL(ctx context.Context, url string) error {
	return s.fetchInto(ctx, url, s.PlaylistPath())
}

// ReplaceEPGFromURL fetches an EPG document from url and replaces the backing
// file with the response body.
func (s *Store) ReplaceEPGFromURL(ctx context.Context, url string) error {
	return s.fetchInto(ctx, url, s.EPGPath())
}

func (s *Store) fetchInto(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: upstream status %d", url, resp.StatusCode)
	}

	return s.replace(dest, io.LimitReader(resp.Body, maxFetchSize))
}

// replace writes the reader contents to a temp file in the same directory and
// renames it over dest, so a half-written file is never visible to readers.
func (s *Store) replace(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, ".replace-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", dest, err)
	}

	logger.Debug("{store/store - replace} Replaced %s (%d bytes)", dest, written)
	return nil
}
