package upstream

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePageFetcher struct {
	page  Page
	err   error
	calls int
}

func (f *fakePageFetcher) Fetch(_ context.Context, url string, _ http.Header) (Page, error) {
	f.calls++
	if f.err != nil {
		return Page{}, f.err
	}
	p := f.page
	p.URL = url
	return p, nil
}

type fakeRenderer struct {
	page  Page
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (Page, error) {
	f.calls++
	if f.err != nil {
		return Page{}, f.err
	}
	p := f.page
	p.URL = url
	p.Rendered = true
	return p, nil
}

type fakeDetector struct {
	needs bool
}

func (f fakeDetector) NeedsRender(context.Context, Page) bool { return f.needs }

const apiPattern = `"apiUrl"\s*:\s*"([^"]+)"`

func TestDiscoverExtractsBase(t *testing.T) {
	fetcher := &fakePageFetcher{page: Page{
		StatusCode: http.StatusOK,
		Body:       []byte(`<script>var cfg = {"apiUrl":"https://api.example.test/v7/"};</script>`),
	}}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, nil, nil, nil)
	require.NoError(t, err)

	base, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v7", base, "trailing slash is trimmed")
	assert.Equal(t, 1, fetcher.calls)
}

func TestDiscoverUnescapesEmbeddedURL(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unicode escapes", body: `{"apiUrl":"https:\u002F\u002Fapi.example.test\u002Fv7"}`},
		{name: "slash escapes", body: `{"apiUrl":"https:\/\/api.example.test\/v7"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakePageFetcher{page: Page{StatusCode: http.StatusOK, Body: []byte(tt.body)}}
			d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, nil, nil, nil)
			require.NoError(t, err)

			base, err := d.Discover(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "https://api.example.test/v7", base)
		})
	}
}

func TestDiscoverFallsBackToRender(t *testing.T) {
	fetcher := &fakePageFetcher{page: Page{StatusCode: http.StatusOK, Body: []byte(`<div id="root"></div>`)}}
	renderer := &fakeRenderer{page: Page{StatusCode: http.StatusOK, Body: []byte(`{"apiUrl":"https://api.example.test/v7"}`)}}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, renderer, fakeDetector{needs: true}, nil)
	require.NoError(t, err)

	base, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v7", base)
	assert.Equal(t, 1, renderer.calls)
}

func TestDiscoverSkipsRenderWhenPageIsComplete(t *testing.T) {
	// The page rendered fully and still carries no API URL: the render
	// fallback would only repeat the miss, so the detector vetoes it.
	fetcher := &fakePageFetcher{page: Page{StatusCode: http.StatusOK, Body: []byte(`<html>plenty of content, no api url</html>`)}}
	renderer := &fakeRenderer{page: Page{Body: []byte(`{"apiUrl":"https://api.example.test/v7"}`)}}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, renderer, fakeDetector{needs: false}, nil)
	require.NoError(t, err)

	_, err = d.Discover(context.Background())
	require.ErrorIs(t, err, ErrDiscovery)
	assert.Zero(t, renderer.calls)
}

func TestDiscoverRendersWithoutDetector(t *testing.T) {
	fetcher := &fakePageFetcher{page: Page{StatusCode: http.StatusOK, Body: []byte(`shell`)}}
	renderer := &fakeRenderer{page: Page{Body: []byte(`{"apiUrl":"https://api.example.test/v7"}`)}}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, renderer, nil, nil)
	require.NoError(t, err)

	base, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v7", base)
}

func TestDiscoverReportsFetchFailure(t *testing.T) {
	fetcher := &fakePageFetcher{err: errors.New("boom")}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, nil, nil, nil)
	require.NoError(t, err)

	_, err = d.Discover(context.Background())
	require.ErrorIs(t, err, ErrDiscovery)
}

func TestDiscoverPatternMissIsFatal(t *testing.T) {
	fetcher := &fakePageFetcher{page: Page{StatusCode: http.StatusOK, Body: []byte(`nothing useful`)}}
	d, err := NewDiscoverer("https://example.test", apiPattern, fetcher, nil, nil, nil)
	require.NoError(t, err)

	_, err = d.Discover(context.Background())
	require.ErrorIs(t, err, ErrDiscovery)
}

func TestNewDiscovererValidation(t *testing.T) {
	fetcher := &fakePageFetcher{}

	_, err := NewDiscoverer("", apiPattern, fetcher, nil, nil, nil)
	require.Error(t, err)

	_, err = NewDiscoverer("https://example.test", `no capture group`, fetcher, nil, nil, nil)
	require.Error(t, err)

	_, err = NewDiscoverer("https://example.test", `([`, fetcher, nil, nil, nil)
	require.Error(t, err)
}
