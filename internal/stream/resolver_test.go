package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/stream"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// itsRowsBody shapes a response payload mimicking spec.md §6's
// "response.data" envelope, supporting both array and single-object
// edge cases.
func itsRowsBody(t *testing.T, rowsJSON string) []byte {
	t.Helper()
	raw := `{"response":{"data":` + rowsJSON + `}}`
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return []byte(raw)
}

func TestResolveHLSPicksClosestRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := itsRowsBody(t, `[
			{"cctvurl":"https://example.com/far.m3u8","coordx":"200.0","coordy":"200.0","cctvname":"far","cctvformat":"HLS","cctvtype":"1"},
			{"cctvurl":"https://example.com/near.m3u8","coordx":"127.0","coordy":"37.5","cctvname":"near","cctvformat":"HLS","cctvtype":"1"}
		]`)
		w.Write(body)
	}))
	defer srv.Close()

	r := stream.NewResolverWithEndpoint("key", time.Second, srv.URL)
	url, err := r.ResolveHLS(context.Background(), stream.Stream{Name: "demo", CoordX: 127.0, CoordY: 37.5})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/near.m3u8", url)
}

func TestResolveHLSSingleObjectNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := itsRowsBody(t, `{"cctvurl":"https://example.com/only.m3u8","coordx":"127.0","coordy":"37.5","cctvname":"only","cctvformat":"HLS","cctvtype":"1"}`)
		w.Write(body)
	}))
	defer srv.Close()

	r := stream.NewResolverWithEndpoint("key", time.Second, srv.URL)
	url, err := r.ResolveHLS(context.Background(), stream.Stream{Name: "demo", CoordX: 127.0, CoordY: 37.5})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/only.m3u8", url)
}

func TestResolveHLSTooFarIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := itsRowsBody(t, `[{"cctvurl":"https://example.com/far.m3u8","coordx":"50.0","coordy":"50.0","cctvname":"far","cctvformat":"HLS","cctvtype":"1"}]`)
		w.Write(body)
	}))
	defer srv.Close()

	r := stream.NewResolverWithEndpoint("key", time.Second, srv.URL)
	_, err := r.ResolveHLS(context.Background(), stream.Stream{Name: "demo", CoordX: 127.0, CoordY: 37.5})
	assert.True(t, taskmodel.IsNotFound(err))
}
