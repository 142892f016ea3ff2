package catalog

import (
	"sort"
	"strconv"
	"strings"

	"sokol-player/work/playlist"

	"github.com/grafana/regexp"
)

// Show is the reconstructed hierarchy for one series: seasons keyed by number,
// each an ordered list of episodes. Poster comes from the first entry assigned
// to the show and is never overwritten by later entries.
type Show struct {
	Title   string            `json:"title"`
	Poster  string            `json:"poster"`
	Seasons map[int][]Episode `json:"seasons"`
}

// Episode is one playable series entry under a season.
type Episode struct {
	Episode int    `json:"episode"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Logo    string `json:"logo"`
}

// Title patterns: an optional leading two-character pipe tag (language or
// region, e.g. "|EN| "), the show title, then season and episode markers in
// either "S01E02" or "1x02" spelling. Tried in order; first match wins.
var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)^(?:\|..\|\s*)?(.*)S(\d{1,2})\s*E(\d{1,2})`)
	crossEpisodeRe  = regexp.MustCompile(`(?i)^(?:\|..\|\s*)?(.*)\b(\d{1,2})x(\d{1,2})`)
	anyTagRe        = regexp.MustCompile(`\|..\|`)
	leadingTagRe    = regexp.MustCompile(`^\|..\|\s*`)
)

// Structure groups series entries into shows. Grouping is by exact show-title
// string equality, so near-duplicate titles differing by punctuation or case
// become distinct shows; that is an accepted heuristic limitation of the
// source format, not something to normalize away. Entries whose name carries
// no recognizable numbering default to season 1, episode 1.
func Structure(entries []playlist.Entry) map[string]*Show {
	shows := make(map[string]*Show)

	for _, e := range entries {
		name := strings.TrimSpace(e.Name())

		title := name
		season, episode := 1, 1

		m := seasonEpisodeRe.FindStringSubmatch(name)
		if m == nil {
			m = crossEpisodeRe.FindStringSubmatch(name)
		}
		if m != nil {
			title = strings.TrimSpace(anyTagRe.ReplaceAllString(m[1], ""))
			if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
				season = n
			}
			if n, err := strconv.Atoi(m[3]); err == nil && n > 0 {
				episode = n
			}
		} else {
			title = strings.TrimSpace(leadingTagRe.ReplaceAllString(name, ""))
		}

		show, ok := shows[title]
		if !ok {
			show = &Show{
				Title:   title,
				Poster:  e.TvgLogo,
				Seasons: make(map[int][]Episode),
			}
			shows[title] = show
		}
		show.Seasons[season] = append(show.Seasons[season], Episode{
			Episode: episode,
			Name:    name,
			URL:     e.URL,
			Logo:    e.TvgLogo,
		})
	}

	// numeric ordering within each season, stable for duplicate numbers
	for _, show := range shows {
		for season := range show.Seasons {
			eps := show.Seasons[season]
			sort.SliceStable(eps, func(i, j int) bool {
				return eps[i].Episode < eps[j].Episode
			})
		}
	}

	return shows
}
