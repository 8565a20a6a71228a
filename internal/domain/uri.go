package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// UIResourceURI returns ui://<name>/app.html. Nested names keep their slashes,
// each segment path-escaped.
func UIResourceURI(name string) string {
	segments := strings.Split(name, "/")
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return UIResourceScheme + "://" + strings.Join(escaped, "/") + "/" + UIResourceDocument
}

// ParseUIResourceURI recovers the entity name from a ui:// resource URI.
func ParseUIResourceURI(raw string) (string, error) {
	prefix := UIResourceScheme + "://"
	suffix := "/" + UIResourceDocument
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, suffix) {
		return "", fmt.Errorf("%w: %q is not a ui resource uri", ErrInvalidPath, raw)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(raw, prefix), suffix)
	if body == "" {
		return "", fmt.Errorf("%w: %q has no entity name", ErrInvalidPath, raw)
	}
	segments := strings.Split(body, "/")
	for i, segment := range segments {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if decoded == "" || decoded == "." || decoded == ".." {
			return "", fmt.Errorf("%w: invalid segment %q", ErrInvalidPath, segment)
		}
		segments[i] = decoded
	}
	return strings.Join(segments, "/"), nil
}
