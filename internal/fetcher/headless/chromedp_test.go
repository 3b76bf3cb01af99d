package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

func TestNewChromedp_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 2, cap(f.slots))
	assert.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	assert.Equal(t, defaultSettle, f.cfg.SettleTimeout)
}

func TestNewChromedp_Unlimited(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{NavigationTimeout: time.Second, SettleTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer f.Close()
	assert.Nil(t, f.slots)
	assert.Equal(t, time.Second, f.cfg.NavigationTimeout)
	assert.Equal(t, 2*time.Second, f.cfg.SettleTimeout)

	release, err := f.acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestFetcher_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	defer f.Close()

	release, err := f.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)

	release()
	release2, err := f.acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestDocumentResponse_Listen(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn/app.js"},
	})
	doc.listen("unrelated event")
	doc.listen(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://dragonholic.com/novel/moon-song/",
			Headers: network.Headers{"Set-Cookie": "a=1\nb=2", "X-Count": 3},
		},
	})

	status, url, headers := doc.result("https://location", "https://req")
	assert.Equal(t, 203, status)
	assert.Equal(t, "https://dragonholic.com/novel/moon-song/", url)
	assert.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
	assert.Equal(t, "3", headers.Get("X-Count"))
}

func TestDocumentResponse_Fallbacks(t *testing.T) {
	t.Parallel()

	status, url, headers := (&documentResponse{}).result("https://final", "https://req")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://final", url)
	assert.NotNil(t, headers)

	_, url, _ = (&documentResponse{}).result("", "https://req")
	assert.Equal(t, "https://req", url)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{
		"Accept-Language": {"en-US", "en;q=0.9"},
		"Referer":         {"https://dragonholic.com/"},
		"X-Empty":         {},
	})
	assert.Equal(t, network.Headers{
		"Accept-Language": "en-US, en;q=0.9",
		"Referer":         "https://dragonholic.com/",
	}, got)
}

func TestFetcher_FetchAfterClose(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	f.Close()
	f.Close()

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://dragonholic.com/novel/moon-song/"})
	require.ErrorContains(t, err, "closed")
	assert.Nil(t, f.browser)

	release, err := f.acquire(context.Background())
	require.NoError(t, err, "a failed fetch must give its slot back")
	release()
}
