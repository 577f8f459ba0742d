package collector

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uaServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("User-Agent"))
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClientFactoryInstallsOnce(t *testing.T) {
	f := NewClientFactory(ClientOptions{})

	var wg sync.WaitGroup
	clients := make([]*resty.Client, 32)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i] = f.Client()
		}(i)
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, 1, f.Installs())

	NewProviders(f.Client(), Endpoints{})
	NewProviders(f.Client(), Endpoints{})
	assert.Equal(t, 1, f.Installs())
}

func TestClientFactoryRotatesUserAgent(t *testing.T) {
	srv, seen := uaServer(t)
	c := NewClientFactory(ClientOptions{}).Client()

	for i := 0; i < 5; i++ {
		_, err := c.R().Get(srv.URL)
		require.NoError(t, err)
	}
	require.Len(t, *seen, 5)
	for _, ua := range *seen {
		assert.Contains(t, DefaultUserAgents, ua)
	}
}

func TestClientFactoryKeepsCallerUserAgent(t *testing.T) {
	srv, seen := uaServer(t)
	c := NewClientFactory(ClientOptions{}).Client()

	_, err := c.R().SetHeader("User-Agent", "trendwatch-test/1.0").Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"trendwatch-test/1.0"}, *seen)
}

func TestClientFactoryEmptyPoolDegrades(t *testing.T) {
	srv, seen := uaServer(t)
	f := NewClientFactory(ClientOptions{UserAgents: []string{}})
	c := f.Client()

	_, err := c.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Zero(t, f.Installs())
	require.Len(t, *seen, 1)
	assert.NotContains(t, DefaultUserAgents, (*seen)[0])
}

func TestDefaultClientFactoryIsShared(t *testing.T) {
	assert.Same(t, DefaultClientFactory(), DefaultClientFactory())
	assert.Same(t, DefaultClientFactory().Client(), DefaultClientFactory().Client())
}
