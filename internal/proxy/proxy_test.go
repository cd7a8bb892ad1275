package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("forwards path, query and body", func(t *testing.T) {
		var gotPath, gotQuery, gotBody, gotXFF string
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			gotXFF = r.Header.Get("X-Forwarded-For")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("created"))
		}))
		defer upstream.Close()

		target, err := url.Parse(upstream.URL)
		require.NoError(t, err)
		handler := New(target, NewTransport(), time.Second, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/projects?draft=1", strings.NewReader("title=Act One"))
		req.RemoteAddr = "198.51.100.9:5555"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "created", rec.Body.String())
		assert.Equal(t, "/api/projects", gotPath)
		assert.Equal(t, "draft=1", gotQuery)
		assert.Equal(t, "title=Act One", gotBody)
		assert.Equal(t, "198.51.100.9", gotXFF)
	})

	t.Run("returns 502 when upstream is unreachable", func(t *testing.T) {
		upstream := httptest.NewServer(http.NotFoundHandler())
		target, err := url.Parse(upstream.URL)
		require.NoError(t, err)
		upstream.Close()

		handler := New(target, NewTransport(), time.Second, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("returns 504 when upstream is too slow", func(t *testing.T) {
		release := make(chan struct{})
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer upstream.Close()
		defer close(release)

		target, err := url.Parse(upstream.URL)
		require.NoError(t, err)
		handler := New(target, NewTransport(), 50*time.Millisecond, nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}
