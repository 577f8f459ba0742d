package collector

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgents is the identity pool rotated across outbound requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// ClientOptions configures the shared HTTP client.
type ClientOptions struct {
	Timeout    time.Duration
	ProxyURL   string
	UserAgents []string
}

// ClientFactory builds one resty client and installs the identity rotation hook on it exactly once,
// however many fetchers ask for it.
type ClientFactory struct {
	opts ClientOptions

	mu        sync.Mutex
	installed atomic.Bool
	client    *resty.Client
	installs  int
}

// NewClientFactory returns a factory; zero options select a 30s timeout and DefaultUserAgents.
func NewClientFactory(opts ClientOptions) *ClientFactory {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgents == nil {
		opts.UserAgents = DefaultUserAgents
	}
	return &ClientFactory{opts: opts}
}

var (
	defaultFactoryOnce sync.Once
	defaultFactory     *ClientFactory
)

// DefaultClientFactory is the process-wide factory used when a fetcher is built without one.
func DefaultClientFactory() *ClientFactory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = NewClientFactory(ClientOptions{})
	})
	return defaultFactory
}

// Client returns the shared client, building it on first use.
func (f *ClientFactory) Client() *resty.Client {
	if f.installed.Load() {
		return f.client
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installed.Load() {
		return f.client
	}

	c := resty.New().SetTimeout(f.opts.Timeout)
	if f.opts.ProxyURL != "" {
		c.SetProxy(f.opts.ProxyURL)
	}
	f.install(c)
	f.client = c
	f.installed.Store(true)
	return c
}

// install attaches the random identity middleware. An empty pool leaves requests untouched.
func (f *ClientFactory) install(c *resty.Client) {
	pool := f.opts.UserAgents
	if len(pool) == 0 {
		return
	}
	c.OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
		if r.Header.Get("User-Agent") != "" || c.Header.Get("User-Agent") != "" {
			return nil
		}
		r.Header.Set("User-Agent", pool[rand.Intn(len(pool))])
		return nil
	})
	f.installs++
}

// Installs reports how many times the identity hook was attached.
func (f *ClientFactory) Installs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs
}

