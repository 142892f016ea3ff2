package catalog

import (
	"testing"

	"sokol-player/work/playlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeSeriesByURLMarker(t *testing.T) {
	// the series path marker wins regardless of group text
	cat := Categorize([]playlist.Entry{
		{Title: "Anything", Group: "Movies", URL: "http://host/series/123.mkv"},
	})
	require.Len(t, cat.Series, 1)
	assert.Empty(t, cat.Movies)
	assert.Empty(t, cat.Live)
}

func TestCategorizeSeriesByEpisodePattern(t *testing.T) {
	tests := []struct {
		name  string
		entry playlist.Entry
	}{
		{"SxxEyy in title", playlist.Entry{Title: "Drama S01E02", URL: "http://host/x.ts"}},
		{"SxxEyy beats movie URL", playlist.Entry{Title: "Drama S01E02", URL: "http://host/movie/x.mp4"}},
		{"lowercase spelling", playlist.Entry{Title: "drama s3e7", URL: "http://host/x.ts"}},
		{"NxN spelling", playlist.Entry{Title: "Drama 1x02", URL: "http://host/x.ts"}},
		{"tvg-name preferred", playlist.Entry{Title: "plain", TvgName: "Drama S02E05", URL: "http://host/x.ts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := Categorize([]playlist.Entry{tt.entry})
			assert.Len(t, cat.Series, 1)
		})
	}
}

func TestCategorizeMovies(t *testing.T) {
	tests := []struct {
		name  string
		entry playlist.Entry
	}{
		{"movie path marker", playlist.Entry{Title: "Heat", URL: "http://host/movie/heat.ts"}},
		{"mp4 extension", playlist.Entry{Title: "Heat", URL: "http://host/vod/heat.mp4"}},
		{"mkv extension", playlist.Entry{Title: "Heat", URL: "http://host/vod/heat.mkv"}},
		{"movie group keyword", playlist.Entry{Title: "Heat", Group: "Action Movies", URL: "http://host/heat.ts"}},
		{"film group keyword", playlist.Entry{Title: "Heat", Group: "FILMS FR", URL: "http://host/heat.ts"}},
		{"cinema group keyword", playlist.Entry{Title: "Heat", Group: "cinema", URL: "http://host/heat.ts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := Categorize([]playlist.Entry{tt.entry})
			assert.Len(t, cat.Movies, 1)
		})
	}
}

func TestCategorizeDefaultsToLive(t *testing.T) {
	cat := Categorize([]playlist.Entry{
		{Title: "CNN HD", Group: "News", URL: "http://host/live/cnn.ts"},
	})
	require.Len(t, cat.Live, 1)
	assert.Empty(t, cat.Movies)
	assert.Empty(t, cat.Series)
}

func TestCategorizeEveryEntryInExactlyOneBucket(t *testing.T) {
	entries := []playlist.Entry{
		{Title: "CNN", Group: "News", URL: "http://host/live/cnn.ts"},
		{Title: "Heat", URL: "http://host/movie/heat.mp4"},
		{Title: "Drama S01E01", URL: "http://host/series/1.ts"},
		{Title: "Weather", URL: "http://host/live/weather.ts"},
	}
	cat := Categorize(entries)
	assert.Equal(t, len(entries), len(cat.Live)+len(cat.Movies)+len(cat.Series))
}

func TestGroupsFirstSeenOrderNoDuplicatesNoEmpties(t *testing.T) {
	groups := Groups([]playlist.Entry{
		{Group: "News"},
		{Group: "Sports"},
		{Group: "News"},
		{Group: ""},
		{Group: "Kids"},
	})
	assert.Equal(t, []string{"News", "Sports", "Kids"}, groups)
}

func TestGroupsEmptyInputYieldsEmptyNonNilSlice(t *testing.T) {
	groups := Groups(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}
