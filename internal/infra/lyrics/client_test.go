package lyrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL + "/v1/"}), &hits
}

func TestGet(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/Daft Punk/One More Time", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"lyrics": "One more time\nWe're gonna celebrate"}`)
	})

	ctx := context.Background()
	lyrics := client.Get(ctx, "Daft Punk", "One More Time")
	assert.Equal(t, "One more time\nWe're gonna celebrate", lyrics)

	// Second lookup is served from the cache.
	assert.Equal(t, lyrics, client.Get(ctx, "Daft Punk", "One More Time"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, client.CacheSize())
}

func TestGet_EscapesPath(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/AC%2FDC/T.N.T.", r.URL.EscapedPath())
		fmt.Fprint(w, `{"lyrics": "Oi! Oi! Oi!"}`)
	})

	assert.Equal(t, "Oi! Oi! Oi!", client.Get(context.Background(), "AC/DC", "T.N.T."))
}

func TestGet_Placeholder(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		artist  string
		title   string
		wantHit bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"error": "No lyrics found"}`, artist: "a", title: "b", wantHit: true},
		{name: "empty lyrics", status: http.StatusOK, body: `{"lyrics": ""}`, artist: "a", title: "b", wantHit: true},
		{name: "malformed body", status: http.StatusOK, body: `<html>`, artist: "a", title: "b", wantHit: true},
		{name: "missing artist", status: http.StatusOK, body: `{"lyrics": "x"}`, artist: "", title: "b", wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			ctx := context.Background()
			assert.Equal(t, Placeholder, client.Get(ctx, tt.artist, tt.title))
			assert.Equal(t, Placeholder, client.Get(ctx, tt.artist, tt.title), "the placeholder is cached too")

			want := int32(0)
			if tt.wantHit {
				want = 1
			}
			assert.Equal(t, want, hits.Load())
		})
	}
}

func TestGet_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := New(Config{BaseURL: server.URL})
	assert.Equal(t, Placeholder, client.Get(context.Background(), "Daft Punk", "Aerodynamic"))
}
