package application

import (
	"regexp"
	"strings"
)

var (
	orderIDLinkPattern = regexp.MustCompile(`.*orderID=([0-9A-Z-]*)$`)
	searchLinkPattern  = regexp.MustCompile(`.*search=([0-9A-Z-]*)$`)
)

// ContextMenuResolver pulls an order identifier out of a right-clicked link.
type ContextMenuResolver struct{}

// Resolve recognises links ending in an orderID= or search= parameter. When
// the link mentions orderID= only that parameter is considered.
func (ContextMenuResolver) Resolve(linkURL string) (string, bool) {
	switch {
	case strings.Contains(linkURL, "orderID="):
		return captureIdentifier(orderIDLinkPattern, linkURL)
	case strings.Contains(linkURL, "search="):
		return captureIdentifier(searchLinkPattern, linkURL)
	default:
		return "", false
	}
}

func captureIdentifier(pattern *regexp.Regexp, linkURL string) (string, bool) {
	match := pattern.FindStringSubmatch(linkURL)
	if len(match) < 2 || match[1] == "" {
		return "", false
	}
	return match[1], true
}
