package catalog

import (
	"strings"

	"sokol-player/work/playlist"

	"github.com/grafana/regexp"
)

// Bucket identifies one of the three top-level catalog partitions.
type Bucket string

const (
	BucketLive   Bucket = "live"
	BucketMovies Bucket = "movies"
	BucketSeries Bucket = "series"
)

// Catalog is the derived partition of a playlist into live, movie and series
// entries. It is rebuilt from the backing file on every query and never
// persisted.
type Catalog struct {
	Live   []playlist.Entry
	Movies []playlist.Entry
	Series []playlist.Entry
}

// Content detection patterns. Episode numbering accepts both common
// spellings: "S01E02" and "1x02".
var (
	episodeRe    = regexp.MustCompile(`(?i)S\d{1,2}\s*E\d{1,2}|\b\d{1,2}x\d{1,2}\b`)
	movieGroupRe = regexp.MustCompile(`(?i)movie|film|cinema`)
)

var movieExtensions = []string{".mp4", ".mkv", ".avi", ".mov"}

// classifier pairs a bucket with its predicate. Classifiers run in fixed
// priority order; the first match wins, so an entry matching both the series
// and movie heuristics lands in series.
type classifier struct {
	bucket Bucket
	match  func(e playlist.Entry) bool
}

var classifiers = []classifier{
	{BucketSeries, IsSeries},
	{BucketMovies, isMovie},
}

// IsSeries reports whether an entry belongs to the series bucket: its URL
// path carries the series marker, or its display name carries episode
// numbering.
func IsSeries(e playlist.Entry) bool {
	if strings.Contains(strings.ToLower(e.URL), "/series/") {
		return true
	}
	return episodeRe.MatchString(e.Name())
}

func isMovie(e playlist.Entry) bool {
	u := strings.ToLower(e.URL)
	if strings.Contains(u, "/movie/") {
		return true
	}
	for _, ext := range movieExtensions {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return movieGroupRe.MatchString(e.Group)
}

// Categorize assigns every entry to exactly one bucket. Anything matching
// neither the series nor the movie heuristics is treated as a live channel.
func Categorize(entries []playlist.Entry) Catalog {
	var cat Catalog
	for _, e := range entries {
		assigned := false
		for _, c := range classifiers {
			if c.match(e) {
				switch c.bucket {
				case BucketSeries:
					cat.Series = append(cat.Series, e)
				case BucketMovies:
					cat.Movies = append(cat.Movies, e)
				}
				assigned = true
				break
			}
		}
		if !assigned {
			cat.Live = append(cat.Live, e)
		}
	}
	return cat
}

// Groups returns the distinct non-empty group labels of a bucket in
// first-seen order.
func Groups(entries []playlist.Entry) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, e := range entries {
		if e.Group == "" || seen[e.Group] {
			continue
		}
		seen[e.Group] = true
		out = append(out, e.Group)
	}
	return out
}
