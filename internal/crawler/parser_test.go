package crawler

import (
	"strings"
	"testing"

	"marketplace-scraper/pkg/models"
)

const searchBase = "https://www.facebook.com/marketplace/search/?query=bike"

func mustView(t *testing.T, rawHTML string) DocumentView {
	t.Helper()
	view, err := NewDocumentView(strings.NewReader(rawHTML), searchBase)
	if err != nil {
		t.Fatalf("Expected no error parsing fixture, got %v", err)
	}
	return view
}

func TestParser_Extract(t *testing.T) {
	rawHTML := `
		<!DOCTYPE html>
		<html>
		<body>
			<div role="main">
				<a href="/marketplace/category/bikes"><span dir="auto">Bikes</span></a>

				<a href="/marketplace/item/111/?ref=search&amp;tracking=abc">
					<img src="https://scontent.example.com/111.jpg">
					<div><span>$120</span></div>
					<div><span dir="auto">Trek road bike</span></div>
					<div><span>Austin, TX</span></div>
				</a>

				<a href="https://www.facebook.com/marketplace/item/222/">
					<span dir="auto">Free couch</span>
					<span>Free</span>
					<span>5 miles away</span>
				</a>

				<a href="/marketplace/item/333/">
					<span>$40</span>
				</a>

				<a href="/marketplace/item/%zz">
					<span dir="auto">Broken link</span>
				</a>

				<a href="https://evil.example/marketplace/item/444/">
					<span dir="auto">Look-alike</span>
				</a>
			</div>
		</body>
		</html>
	`

	var itemErrors []*ItemExtractionError
	p := NewParser()
	p.OnItemError = func(err *ItemExtractionError) {
		itemErrors = append(itemErrors, err)
	}

	records := p.Extract(mustView(t, rawHTML))

	expected := []models.CandidateRecord{
		{
			Title:    "Trek road bike",
			Price:    "$120",
			Location: "Austin, TX",
			URL:      "https://www.facebook.com/marketplace/item/111/",
			ImageURL: "https://scontent.example.com/111.jpg",
		},
		{
			Title:    "Free couch",
			Price:    "",
			Location: "5 miles away",
			URL:      "https://www.facebook.com/marketplace/item/222/",
		},
	}

	if len(records) != len(expected) {
		t.Fatalf("Record count mismatch. Expected %d, got %d: %+v", len(expected), len(records), records)
	}
	for i, rec := range records {
		if rec != expected[i] {
			t.Errorf("Record %d mismatch.\nExpected: %+v\nGot:      %+v", i, expected[i], rec)
		}
	}

	if len(itemErrors) != 1 {
		t.Fatalf("Expected exactly one item error, got %d", len(itemErrors))
	}
	if itemErrors[0].Index != 3 {
		t.Errorf("Item error index mismatch. Expected 3, got %d", itemErrors[0].Index)
	}
}

func TestParser_ExtractNoAnchors(t *testing.T) {
	view := mustView(t, `<html><body><div role="main"><span dir="auto">No results</span></div></body></html>`)

	records := NewParser().Extract(view)
	if records == nil {
		t.Fatal("Expected an empty slice, got nil")
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestParser_ExtractMissingTitle(t *testing.T) {
	view := mustView(t, `
		<a href="/marketplace/item/1/"><span>$10</span><span>Dallas, TX</span></a>
		<a href="/marketplace/item/2/"><span dir="auto">   </span><span>$20</span></a>
		<a href="/marketplace/item/3/"><span dir="auto">Lamp</span></a>
	`)

	records := NewParser().Extract(view)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].Title != "Lamp" {
		t.Errorf("Title mismatch. Expected %q, got %q", "Lamp", records[0].Title)
	}
}

func TestParser_ExtractPriceWithoutCurrency(t *testing.T) {
	view := mustView(t, `
		<a href="/marketplace/item/9/">
			<span dir="auto">Mountain bike</span>
			<span>150</span>
			<span>Free to a good home</span>
		</a>
	`)

	records := NewParser().Extract(view)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Price != "" {
		t.Errorf("Price should be absent without a $ marker, got %q", records[0].Price)
	}
}

// The location rule is a heuristic: any span with a comma qualifies, so a
// formatted price can be picked up as the location.
func TestParser_ExtractLocationHeuristicMisfire(t *testing.T) {
	view := mustView(t, `
		<a href="/marketplace/item/7/">
			<span dir="auto">Sofa</span>
			<span>$1,200</span>
			<span>Denver, CO</span>
		</a>
	`)

	records := NewParser().Extract(view)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Location != "$1,200" {
		t.Errorf("Expected the documented false positive %q, got %q", "$1,200", records[0].Location)
	}
}

type panicNode struct{}

func (panicNode) Find(string) []Node { panic("detached node") }
func (panicNode) Text() string { return "" }
func (panicNode) Attr(string) (string, bool) { return "/marketplace/item/5/", true }

type stubView struct {
	nodes []Node
}

func (v stubView) Find(string) []Node { return v.nodes }
func (v stubView) BaseURL() string { return searchBase }

func TestParser_ExtractRecoversPerItem(t *testing.T) {
	good := mustView(t, `<a href="/marketplace/item/8/"><span dir="auto">Desk</span></a>`).Find(itemAnchorSelector)
	view := stubView{nodes: append([]Node{panicNode{}}, good...)}

	var skipped int
	p := NewParser()
	p.OnItemError = func(*ItemExtractionError) { skipped++ }

	records := p.Extract(view)
	if skipped != 1 {
		t.Errorf("Expected 1 skipped item, got %d", skipped)
	}
	if len(records) != 1 || records[0].Title != "Desk" {
		t.Errorf("Expected extraction to continue after a failing item, got %+v", records)
	}
}
