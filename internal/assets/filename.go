package assets

import (
	"net/url"
	"path"
	"strings"
)

// RootFilename is used when a URL path has no usable last segment.
const RootFilename = "index.html"

// Sanitize maps every character outside letters/digits/dot/hyphen to an
// underscore, keeping stored filenames filesystem-safe.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FilenameFromURL derives a sanitized filename from the URL's last path
// segment. The root path yields index.html.
func FilenameFromURL(u *url.URL) string {
	segment := path.Base(u.Path)
	if segment == "/" || segment == "." || segment == "" {
		return RootFilename
	}
	name := Sanitize(segment)
	if name == "" {
		return RootFilename
	}
	return name
}

// PageFilename derives a stored filename for a captured page. Segments
// without an extension get .html appended so the page serves with a
// usable content type.
func PageFilename(u *url.URL) string {
	name := FilenameFromURL(u)
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}
