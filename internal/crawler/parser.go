package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"marketplace-scraper/pkg/models"
)

const (
	itemAnchorSelector = `a[href*="/marketplace/item/"]`
	titleSelector      = `span[dir="auto"], span[dir="ltr"]`
)

// Parser turns a rendered search page into candidate listings. The page has
// no stable markup, so every field is the best signal available rather than a
// guaranteed value: price is the first span with a "$", location the first span
// that looks like "City, ST" or a distance.
type Parser struct {
	Items ItemFilter

	// OnItemError, when set, is told about listings that were skipped
	// because reading them failed.
	OnItemError func(*ItemExtractionError)
}

func NewParser() *Parser {
	return &Parser{}
}

// Extract never fails. Listings come back in document order; slots without a
// title or a canonical item URL are dropped.
func (p *Parser) Extract(doc DocumentView) []models.CandidateRecord {
	base := doc.BaseURL()

	var domain URLFilter
	if f, err := NewInDomainFilter(base); err == nil {
		domain = f
	}

	anchors := doc.Find(itemAnchorSelector)
	records := make([]models.CandidateRecord, 0, len(anchors))
	for i, anchor := range anchors {
		rec, err := p.extractItem(anchor, base, domain)
		if err != nil {
			if p.OnItemError != nil {
				p.OnItemError(&ItemExtractionError{Index: i, Err: err})
			}
			continue
		}
		if rec.Title == "" || rec.URL == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (p *Parser) extractItem(anchor Node, base string, domain URLFilter) (rec models.CandidateRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	href, _ := anchor.Attr("href")
	absolute, err := resolveURL(base, href)
	if err != nil {
		return rec, err
	}
	rec.URL = p.Items.Canonical(absolute)
	if rec.URL != "" && domain != nil && !domain.Filter(rec.URL) {
		rec.URL = ""
	}

	rec.Title = firstText(anchor.Find(titleSelector), nil)

	spans := anchor.Find("span")
	rec.Price = firstText(spans, func(text string) bool {
		return strings.Contains(text, "$")
	})
	rec.Location = firstText(spans, looksLikeLocation)

	if imgs := anchor.Find("img"); len(imgs) > 0 {
		if src, ok := imgs[0].Attr("src"); ok && strings.TrimSpace(src) != "" {
			if abs, err := resolveURL(base, src); err == nil {
				rec.ImageURL = abs
			}
		}
	}
	return rec, nil
}

func looksLikeLocation(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "miles") || strings.Contains(lower, "km") || strings.Contains(lower, ",")
}

// firstText returns the trimmed text of the first non-empty node accepted by match.
func firstText(nodes []Node, match func(string) bool) string {
	for _, n := range nodes {
		text := strings.TrimSpace(n.Text())
		if text == "" {
			continue
		}
		if match == nil || match(text) {
			return text
		}
	}
	return ""
}

// Utility to resolve relative URLs (e.g. "/marketplace/item/1" -> "https://site.com/marketplace/item/1")
func resolveURL(base, href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("bad href %q: %w", href, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad base %q: %w", base, err)
	}
	return baseURL.ResolveReference(u).String(), nil
}
