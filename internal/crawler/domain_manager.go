package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const robotsCacheSize = 128

// DomainManager is the per-host politeness gate: a rate limiter spacing
// attempts against one host, and an optional robots.txt check.
type DomainManager struct {
	// Client fetches robots.txt. Defaults to http.DefaultClient.
	Client *http.Client

	userAgent     string
	interval      time.Duration
	respectRobots bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	robots   *lru.Cache[string, *robotstxt.Group]
}

func NewDomainManager(userAgent string, interval time.Duration, respectRobots bool) (*DomainManager, error) {
	cache, err := lru.New[string, *robotstxt.Group](robotsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("robots cache: %w", err)
	}
	return &DomainManager{
		userAgent:     userAgent,
		interval:      interval,
		respectRobots: respectRobots,
		limiters:      make(map[string]*rate.Limiter),
		robots:        cache,
	}, nil
}

// Wait blocks until the host of targetURL may be hit again, or ctx is done.
func (d *DomainManager) Wait(ctx context.Context, targetURL string) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return err
	}
	if d.interval <= 0 {
		return ctx.Err()
	}

	d.mu.Lock()
	limiter, exists := d.limiters[u.Host]
	if !exists {
		// burst 1: the first attempt goes through immediately
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[u.Host] = limiter
	}
	d.mu.Unlock()

	return limiter.Wait(ctx)
}

// IsAllowed reports whether robots.txt lets the configured user agent fetch
// link. It is always true when robots checking is off. A missing or
// unreadable robots.txt allows everything.
func (d *DomainManager) IsAllowed(ctx context.Context, link string) bool {
	if !d.respectRobots {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	group, ok := d.robots.Get(u.Host)
	if !ok {
		group = d.fetchGroup(ctx, u)
		d.robots.Add(u.Host, group)
	}
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (d *DomainManager) fetchGroup(ctx context.Context, u *url.URL) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.Scheme+"://"+u.Host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(d.userAgent)
}
