package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchParsesDocument(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"soc_pct": 57.5, "p_bat_w": -420, "p_grid_w": 130, "p_load_w": 880}`))
	}))
	defer srv.Close()

	sample, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(err)
	require.Equal(57.5, sample.SoCPct)
	require.Equal(-420.0, sample.PBatW)
	require.Equal(130.0, sample.PGridW)
	require.Equal(880.0, sample.PLoadW)
}

func TestFetchRejectsSoCOutOfRange(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"soc_pct": 130, "p_bat_w": 0, "p_grid_w": 0, "p_load_w": 0}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(err)
}

func TestFetchRejectsHTTPError(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(err)
}
