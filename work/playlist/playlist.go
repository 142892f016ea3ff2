package playlist

import (
	"bufio"
	"io"
	"strings"

	"github.com/grafana/regexp"
)

// Entry is one playable unit parsed from an M3U playlist: a live channel, a
// movie file or a single series episode, together with whatever metadata the
// source attached to it.
type Entry struct {
	Title   string            `json:"title"`   // display text after the last comma of the #EXTINF line
	TvgName string            `json:"tvgName"` // tvg-name attribute, preferred for display and classification
	TvgLogo string            `json:"tvgLogo"` // tvg-logo attribute, optional artwork URL
	Group   string            `json:"group"`   // group-title attribute, raw category label
	URL     string            `json:"url"`     // media source URL, never empty on parsed entries
	Headers map[string]string `json:"headers"` // per-entry player options (#EXTVLCOPT key=value pairs)
}

// Name returns the preferred display name for the entry: tvg-name when the
// source provided one, the EXTINF title otherwise.
func (e Entry) Name() string {
	if e.TvgName != "" {
		return e.TvgName
	}
	return e.Title
}

var attrRe = regexp.MustCompile(`([a-zA-Z0-9\-_]+)="([^"]*)"`)

// Parse scans M3U text and returns the playable entries in source order.
//
// An #EXTINF line opens a pending entry, the first following non-directive
// line closes it as the URL. #EXTVLCOPT lines between the two accumulate
// per-entry header options. A bare URL with no preceding #EXTINF becomes a
// minimal entry using the line as both title and URL. Parse never fails on
// malformed input; bad lines degrade to fewer or lower-quality entries.
func Parse(r io.Reader) []Entry {
	var out []Entry
	var cur *Entry
	vlcOpts := map[string]string{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			name := ""
			if idx := lastCommaOutsideQuotes(line); idx != -1 {
				name = strings.TrimSpace(line[idx+1:])
			}
			attrs := map[string]string{}
			for _, m := range attrRe.FindAllStringSubmatch(line, -1) {
				attrs[m[1]] = m[2]
			}
			cur = &Entry{
				Title:   name,
				TvgName: attrs["tvg-name"],
				TvgLogo: attrs["tvg-logo"],
				Group:   attrs["group-title"],
				Headers: map[string]string{},
			}
			vlcOpts = map[string]string{}

		case strings.HasPrefix(line, "#EXTVLCOPT:"):
			opt := line[len("#EXTVLCOPT:"):]
			if eq := strings.Index(opt, "="); eq > 0 {
				vlcOpts[strings.TrimSpace(opt[:eq])] = strings.TrimSpace(opt[eq+1:])
			}

		case strings.HasPrefix(line, "#"):
			// unrecognized directive, skip

		default:
			if cur != nil {
				cur.URL = line
				cur.Headers = vlcOpts
				out = append(out, *cur)
				cur = nil
				vlcOpts = map[string]string{}
			} else {
				out = append(out, Entry{
					Title:   line,
					URL:     line,
					Headers: map[string]string{},
				})
			}
		}
	}

	return out
}

// lastCommaOutsideQuotes finds the comma separating EXTINF attributes from the
// display name. Attribute values are quoted and may contain commas, so the
// scan runs right to left and ignores commas inside quotes.
func lastCommaOutsideQuotes(line string) int {
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return i
			}
		}
	}
	return -1
}
