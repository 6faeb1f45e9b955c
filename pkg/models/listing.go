package models

import (
	"fmt"
	"strings"
	"time"
)

type Condition string

const (
	ConditionAll  Condition = "all"
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

func (c *Condition) UnmarshalText(text []byte) error {
	switch v := Condition(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case ConditionAll, ConditionNew, ConditionUsed:
		*c = v
		return nil
	case "":
		*c = ConditionAll
		return nil
	default:
		return fmt.Errorf("unknown condition %q (want new, used or all)", string(text))
	}
}

type SortOrder string

const (
	SortBestMatch    SortOrder = "best_match"
	SortPriceLowHigh SortOrder = "price_low_high"
	SortPriceHighLow SortOrder = "price_high_low"
	SortDateListed   SortOrder = "date_listed"
)

func (s *SortOrder) UnmarshalText(text []byte) error {
	switch v := SortOrder(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case SortBestMatch, SortPriceLowHigh, SortPriceHighLow, SortDateListed:
		*s = v
		return nil
	case "":
		*s = SortBestMatch
		return nil
	default:
		return fmt.Errorf("unknown sort order %q", string(text))
	}
}

// BrowserOptions is passed through untouched to the browser backend.
type BrowserOptions struct {
	ProxyServer    string
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// SearchConfig is the immutable input of one crawl session.
type SearchConfig struct {
	Query     string
	Location  string
	MinPrice  *int
	MaxPrice  *int
	Condition Condition
	SortBy    SortOrder
	ResultCap int
	Browser   BrowserOptions
}

// CandidateRecord is one listing as read off the rendered feed. Empty strings
// mean the field could not be found; Price is the raw currency text.
type CandidateRecord struct {
	Title    string `json:"title"`
	Price    string `json:"price"`
	Location string `json:"location"`
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl"`
}

// OutputRecord is what a sink receives: the candidate plus session metadata.
type OutputRecord struct {
	CandidateRecord
	SearchQuery string    `json:"searchQuery"`
	Condition   Condition `json:"condition"`
	ScrapedAt   time.Time `json:"scrapedAt"`
}
