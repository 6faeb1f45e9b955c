package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type URLFilter interface {
	Filter(link string) bool
}

var itemPathRule = regexp.MustCompile(`/marketplace/item/([^/?#]+)`)

// ItemFilter accepts marketplace item-detail links.
type ItemFilter struct{}

func (ItemFilter) Filter(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return itemPathRule.MatchString(u.Path)
}

// Canonical rewrites an absolute item link to scheme://host/marketplace/item/<id>/,
// dropping tracking query strings and fragments. It returns "" for anything
// that is not an item-detail link.
func (ItemFilter) Canonical(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	matches := itemPathRule.FindStringSubmatch(u.Path)
	if len(matches) < 2 {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host) + "/marketplace/item/" + matches[1] + "/"
}

type InDomainFilter struct {
	Domain string
}

func NewInDomainFilter(startURL string) (*InDomainFilter, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	// Strip "www." so m.example.com and example.com still match
	domain := strings.TrimPrefix(u.Hostname(), "www.")
	if domain == "" {
		return nil, fmt.Errorf("could not extract domain from %s", startURL)
	}

	return &InDomainFilter{Domain: domain}, nil
}

func (filter InDomainFilter) Filter(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(filter.Domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
