package session

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// SyntheticPrefix marks ids minted for videos without a platform id.
const SyntheticPrefix = "synthetic-"

// VideoID derives a stable id from a page or media URL: the v query
// parameter on watch pages, the path segment after /shorts/ or /embed/, or
// the path of a youtu.be short link. Anything else gets a fresh synthetic id.
func VideoID(raw string) string {
	if id := platformID(raw); id != "" {
		return id
	}
	return NewSyntheticID()
}

// NewSyntheticID returns a random id for an unrecognised video.
func NewSyntheticID() string {
	return SyntheticPrefix + uuid.NewString()
}

// IsSynthetic reports whether id was minted by NewSyntheticID.
func IsSynthetic(id string) bool { return strings.HasPrefix(id, SyntheticPrefix) }

func platformID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if host == "youtu.be" {
		return firstSegment(u.Path)
	}
	if strings.HasSuffix(host, "youtube.com") && strings.HasPrefix(u.Path, "/watch") {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	}
	for _, prefix := range []string{"/shorts/", "/embed/"} {
		if i := strings.Index(u.Path, prefix); i >= 0 {
			if id := firstSegment(u.Path[i+len(prefix):]); id != "" {
				return id
			}
		}
	}
	return ""
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
