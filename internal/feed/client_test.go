package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscope/fillsync/internal/domain"
)

const testBuilder = "0x1924b8561eef20e70ede628a296175d358be80e5"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		BuilderAddress: testBuilder,
		DateLayout:     "2006-01-02",
	}, testLogger())
}

func TestClientURL(t *testing.T) {
	c := newTestClient("https://stats-data.hyperliquid.xyz/Mainnet/builder_fills")

	url, err := c.URL("2025-11-30")
	require.NoError(t, err)
	assert.Equal(t,
		"https://stats-data.hyperliquid.xyz/Mainnet/builder_fills/"+testBuilder+"/2025-11-30.csv.lz4",
		url)
}

func TestClientURL_CompactLayout(t *testing.T) {
	c := NewClient(ClientConfig{
		BaseURL:        "https://example.com/fills",
		BuilderAddress: testBuilder,
		DateLayout:     "20060102",
	}, testLogger())

	url, err := c.URL("2025-11-30")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/fills/"+testBuilder+"/20251130.csv.lz4", url)
}

func TestClientURL_InvalidDate(t *testing.T) {
	c := newTestClient("https://example.com")

	_, err := c.URL("30/11/2025")
	require.Error(t, err)
}

func TestFetchDay_Success(t *testing.T) {
	csvBody := "time,user,coin,side,px,sz,crossed,isTrigger\n1764460800000,0xabc,BTC,Bid,91000,1,true,false\n"

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_, err := zw.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+testBuilder+"/2025-11-30.csv.lz4", r.URL.Path)
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, found, err := c.FetchDay(context.Background(), "2025-11-30")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, csvBody, text)
}

func TestFetchDay_NotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, found, err := c.FetchDay(context.Background(), "2025-11-30")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, text)
}

func TestFetchDay_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.FetchDay(context.Background(), "2025-11-30")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
}

func TestFetchDay_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use, every request fails to connect

	c := newTestClient(srv.URL)
	_, _, err := c.FetchDay(context.Background(), "2025-11-30")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)
}

func TestFetchDay_CorruptBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not lz4 at all"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.FetchDay(context.Background(), "2025-11-30")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecompression)
}
