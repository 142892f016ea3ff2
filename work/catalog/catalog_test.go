package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlaylist(t *testing.T, content string) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist.m3u")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewService(path)
}

const mixedPlaylist = `#EXTM3U
#EXTINF:-1 tvg-name="CNN HD" group-title="News",CNN HD
http://host/live/cnn.ts
#EXTINF:-1 tvg-name="Heat",Heat
http://host/movie/heat.ts
#EXTINF:-1 tvg-name="Drama S01E01",Drama S01E01
http://host/series/1.ts
#EXTINF:-1 tvg-name="Drama S01E02",Drama S01E02
http://host/series/2.ts
`

func TestServiceMissingFileIsEmptyCatalog(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "does-not-exist.m3u"))

	cats := svc.ListCategories()
	assert.Empty(t, cats.Live)
	assert.Empty(t, cats.Movies)
	assert.Empty(t, cats.Series)

	assert.Empty(t, svc.ListItems("live", GroupAll))
	assert.Empty(t, svc.ListShows(GroupAll))
}

func TestServiceEndToEnd(t *testing.T) {
	svc := writePlaylist(t, mixedPlaylist)

	cats := svc.ListCategories()
	assert.Equal(t, []string{"News"}, cats.Live)
	// the movie and series entries carry no group label, so those listings
	// stay empty
	assert.Empty(t, cats.Movies)
	assert.Empty(t, cats.Series)

	shows := svc.ListShows(GroupAll)
	require.Len(t, shows, 1)
	show, ok := shows["Drama"]
	require.True(t, ok)
	require.Contains(t, show.Seasons, 1)
	eps := show.Seasons[1]
	require.Len(t, eps, 2)
	assert.Equal(t, 1, eps[0].Episode)
	assert.Equal(t, 2, eps[1].Episode)
}

func TestServiceListItemsFiltering(t *testing.T) {
	svc := writePlaylist(t, mixedPlaylist)

	t.Run("all sentinel returns full bucket", func(t *testing.T) {
		assert.Len(t, svc.ListItems("live", GroupAll), 1)
		assert.Len(t, svc.ListItems("movies", GroupAll), 1)
		assert.Len(t, svc.ListItems("series", GroupAll), 2)
	})

	t.Run("group filter matches exactly", func(t *testing.T) {
		items := svc.ListItems("live", "News")
		require.Len(t, items, 1)
		assert.Equal(t, "CNN HD", items[0].TvgName)

		assert.Empty(t, svc.ListItems("live", "news"))
	})

	t.Run("unknown bucket is empty", func(t *testing.T) {
		items := svc.ListItems("documentaries", GroupAll)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestServiceIdempotentReads(t *testing.T) {
	svc := writePlaylist(t, mixedPlaylist)

	first := svc.ListCategories()
	second := svc.ListCategories()
	assert.Equal(t, first, second)

	assert.Equal(t, svc.ListShows(GroupAll), svc.ListShows(GroupAll))
}

func TestServiceObservesFileReplacement(t *testing.T) {
	svc := writePlaylist(t, mixedPlaylist)
	require.Len(t, svc.ListItems("live", GroupAll), 1)

	replacement := `#EXTINF:-1 group-title="Sports",ESPN
http://host/live/espn.ts
#EXTINF:-1 group-title="Sports",Eurosport
http://host/live/euro.ts
`
	require.NoError(t, os.WriteFile(svc.Path, []byte(replacement), 0o644))

	items := svc.ListItems("live", GroupAll)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"Sports"}, svc.ListCategories().Live)
}

func TestServiceListShowsGroupFilter(t *testing.T) {
	svc := writePlaylist(t, `#EXTM3U
#EXTINF:-1 group-title="EN Series",Alpha S01E01
http://host/series/a1.ts
#EXTINF:-1 group-title="FR Series",Beta S01E01
http://host/series/b1.ts
`)

	all := svc.ListShows(GroupAll)
	assert.Len(t, all, 2)

	en := svc.ListShows("EN Series")
	require.Len(t, en, 1)
	assert.Contains(t, en, "Alpha")
}
