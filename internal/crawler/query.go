package crawler

import (
	"net/url"
	"strconv"
	"strings"

	"marketplace-scraper/pkg/models"
)

const MarketplaceBaseURL = "https://www.facebook.com/marketplace"

// BuildSearchURL turns the search filters into the marketplace search URL.
// Parameters are written in a fixed order (query, minPrice, maxPrice, sortBy)
// and only when set, so equal configs always give equal URLs.
func BuildSearchURL(cfg models.SearchConfig) string {
	var params []string
	add := func(key, value string) {
		params = append(params, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	if cfg.Query != "" {
		add("query", cfg.Query)
	}
	if cfg.MinPrice != nil {
		add("minPrice", strconv.Itoa(*cfg.MinPrice))
	}
	if cfg.MaxPrice != nil {
		add("maxPrice", strconv.Itoa(*cfg.MaxPrice))
	}
	if cfg.SortBy != "" && cfg.SortBy != models.SortBestMatch {
		add("sortBy", string(cfg.SortBy))
	}

	if len(params) == 0 {
		return MarketplaceBaseURL + "/search"
	}
	return MarketplaceBaseURL + "/search/?" + strings.Join(params, "&")
}
