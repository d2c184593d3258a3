// Package playlist parses and rewrites HLS manifests so that segment and
// variant URIs survive being fetched through the local relay.
package playlist

import (
	"errors"
	"net/url"
	"strings"
)

// ErrNotPlaylist is returned when the input lacks the #EXTM3U header.
// Whether content is actually HLS is decided one layer up; this package
// only refuses to parse non-manifests.
var ErrNotPlaylist = errors.New("content is not an M3U8 playlist")

// Segment is one entry of a media playlist. Only URI is ever rewritten;
// every other field round-trips verbatim.
type Segment struct {
	URI           string
	Duration      string // raw EXTINF duration text
	Title         string
	ByteRange     string // raw EXT-X-BYTERANGE value
	Discontinuity bool
	Key           string // raw EXT-X-KEY attribute list
	Map           string // raw EXT-X-MAP attribute list
}

// Variant is one entry of a master playlist.
type Variant struct {
	URI        string
	Bandwidth  string
	Resolution string
	Codecs     string
}

// Manifest is a parsed playlist, either master (Variants) or media
// (Segments).
type Manifest struct {
	Master         bool
	Version        string
	TargetDuration string
	MediaSequence  string
	EndList        bool
	Segments       []Segment
	Variants       []Variant
}

// Parse reads M3U8 text into a Manifest. Entry count and order follow the
// input exactly.
func Parse(text string) (*Manifest, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	seen := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen = strings.HasPrefix(strings.TrimSpace(line), "#EXTM3U")
		break
	}
	if !seen {
		return nil, ErrNotPlaylist
	}

	m := &Manifest{}
	var pendingSeg Segment
	var pendingVar Variant
	var haveInf, haveStreamInf bool

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "" || line == "#EXTM3U":
			// skip
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			m.Version = strings.TrimPrefix(line, "#EXT-X-VERSION:")
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			m.TargetDuration = strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			m.MediaSequence = strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")
		case line == "#EXT-X-ENDLIST":
			m.EndList = true
		case line == "#EXT-X-DISCONTINUITY":
			pendingSeg.Discontinuity = true
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			pendingSeg.Key = strings.TrimPrefix(line, "#EXT-X-KEY:")
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			pendingSeg.Map = strings.TrimPrefix(line, "#EXT-X-MAP:")
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			pendingSeg.ByteRange = strings.TrimPrefix(line, "#EXT-X-BYTERANGE:")
		case strings.HasPrefix(line, "#EXTINF:"):
			value := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(value, ','); i >= 0 {
				pendingSeg.Duration = value[:i]
				pendingSeg.Title = value[i+1:]
			} else {
				pendingSeg.Duration = value
			}
			haveInf = true
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			pendingVar = Variant{
				Bandwidth:  attrs["BANDWIDTH"],
				Resolution: attrs["RESOLUTION"],
				Codecs:     attrs["CODECS"],
			}
			haveStreamInf = true
			m.Master = true
		case strings.HasPrefix(line, "#"):
			// unrecognized tag, not part of the entry model
		default:
			// URI line closes the pending entry
			if haveStreamInf {
				pendingVar.URI = line
				m.Variants = append(m.Variants, pendingVar)
				pendingVar = Variant{}
				haveStreamInf = false
			} else if haveInf || pendingSeg != (Segment{}) {
				pendingSeg.URI = line
				m.Segments = append(m.Segments, pendingSeg)
				pendingSeg = Segment{}
				haveInf = false
			}
		}
	}

	return m, nil
}

// String re-serializes the manifest deterministically.
func (m *Manifest) String() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	if m.Version != "" {
		b.WriteString("#EXT-X-VERSION:" + m.Version + "\n")
	}
	if m.TargetDuration != "" {
		b.WriteString("#EXT-X-TARGETDURATION:" + m.TargetDuration + "\n")
	}
	if m.MediaSequence != "" {
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:" + m.MediaSequence + "\n")
	}

	if m.Master {
		for _, v := range m.Variants {
			b.WriteString("#EXT-X-STREAM-INF:")
			var attrs []string
			if v.Bandwidth != "" {
				attrs = append(attrs, "BANDWIDTH="+v.Bandwidth)
			}
			if v.Resolution != "" {
				attrs = append(attrs, "RESOLUTION="+v.Resolution)
			}
			if v.Codecs != "" {
				attrs = append(attrs, "CODECS="+v.Codecs)
			}
			b.WriteString(strings.Join(attrs, ","))
			b.WriteString("\n" + v.URI + "\n")
		}
	} else {
		for _, s := range m.Segments {
			if s.Discontinuity {
				b.WriteString("#EXT-X-DISCONTINUITY\n")
			}
			if s.Key != "" {
				b.WriteString("#EXT-X-KEY:" + s.Key + "\n")
			}
			if s.Map != "" {
				b.WriteString("#EXT-X-MAP:" + s.Map + "\n")
			}
			if s.ByteRange != "" {
				b.WriteString("#EXT-X-BYTERANGE:" + s.ByteRange + "\n")
			}
			b.WriteString("#EXTINF:" + s.Duration + "," + s.Title + "\n")
			b.WriteString(s.URI + "\n")
		}
	}

	if m.EndList {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// Rewrite makes every segment/variant URI absolute against originURL so a
// player fetching through the relay reaches the right host. Rewriting an
// already-absolute manifest is a no-op.
func Rewrite(text, originURL string) (string, error) {
	m, err := Parse(text)
	if err != nil {
		return "", err
	}

	for i := range m.Segments {
		m.Segments[i].URI = ResolveURI(m.Segments[i].URI, originURL)
	}
	for i := range m.Variants {
		m.Variants[i].URI = ResolveURI(m.Variants[i].URI, originURL)
	}

	return m.String(), nil
}

// ResolveURI makes a manifest URI absolute:
// absolute http(s) URIs pass through, root-relative URIs join the origin's
// scheme+host, everything else is relative to the origin's directory.
func ResolveURI(uri, originURL string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}

	origin, err := url.Parse(originURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return uri
	}

	if strings.HasPrefix(uri, "/") {
		return origin.Scheme + "://" + origin.Host + uri
	}

	dir := origin.Path
	if i := strings.LastIndexByte(dir, '/'); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	return origin.Scheme + "://" + origin.Host + dir + uri
}

// parseAttributes splits an HLS attribute list, honoring quoted values
// (CODECS carries commas inside quotes).
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inVal, inQuote := false, false

	flush := func() {
		if key.Len() > 0 {
			attrs[key.String()] = val.String()
		}
		key.Reset()
		val.Reset()
		inVal = false
	}

	for _, r := range list {
		switch {
		case r == '"' && inVal:
			inQuote = !inQuote
			val.WriteRune(r)
		case r == '=' && !inVal:
			inVal = true
		case r == ',' && !inQuote:
			flush()
		case inVal:
			val.WriteRune(r)
		default:
			key.WriteRune(r)
		}
	}
	flush()

	return attrs
}
