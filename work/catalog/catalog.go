package catalog

import (
	"bytes"
	"os"

	"sokol-player/work/logger"
	"sokol-player/work/playlist"
)

// GroupAll is the sentinel group meaning "no group filter".
const GroupAll = "__ALL__"

// Categories holds the group-name listings of the three buckets.
type Categories struct {
	Live   []string `json:"live"`
	Movies []string `json:"movies"`
	Series []string `json:"series"`
}

// Service answers catalog queries against the backing playlist file. It is
// stateless: every call re-reads and re-derives from the file, so concurrent
// callers need no locking and always observe the current file contents. A
// missing backing file is an empty catalog, never an error.
type Service struct {
	Path string // backing playlist file
}

// NewService creates a catalog service over the playlist file at path.
func NewService(path string) *Service {
	return &Service{Path: path}
}

// load reads and parses the backing file. Missing or unreadable files yield
// no entries.
func (s *Service) load() []playlist.Entry {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		logger.Debug("{catalog/catalog - load} No backing playlist at %s: %v", s.Path, err)
		return nil
	}
	return playlist.Parse(bytes.NewReader(data))
}

// ListCategories returns the group listings of all three buckets.
func (s *Service) ListCategories() Categories {
	cat := Categorize(s.load())
	return Categories{
		Live:   Groups(cat.Live),
		Movies: Groups(cat.Movies),
		Series: Groups(cat.Series),
	}
}

// ListItems returns the entries of one bucket, filtered to the requested
// group unless the GroupAll sentinel is given. An unknown bucket name yields
// an empty listing.
func (s *Service) ListItems(bucket string, group string) []playlist.Entry {
	cat := Categorize(s.load())

	var pool []playlist.Entry
	switch Bucket(bucket) {
	case BucketLive:
		pool = cat.Live
	case BucketMovies:
		pool = cat.Movies
	case BucketSeries:
		pool = cat.Series
	default:
		return []playlist.Entry{}
	}

	if group == GroupAll {
		if pool == nil {
			return []playlist.Entry{}
		}
		return pool
	}

	out := make([]playlist.Entry, 0)
	for _, e := range pool {
		if e.Group == group {
			out = append(out, e)
		}
	}
	return out
}

// ListShows builds the show/season/episode tree from the series bucket,
// restricted to the requested group unless the GroupAll sentinel is given.
func (s *Service) ListShows(group string) map[string]*Show {
	cat := Categorize(s.load())

	entries := cat.Series
	if group != GroupAll {
		filtered := make([]playlist.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Group == group {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return Structure(entries)
}
