package pricefeed

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
		w.Write([]byte(`{"import_c_per_kwh": 32.5, "feed_in_c_per_kwh": -1.8, "ts_epoch_ms": 1748779200000}`))
	}))
	defer srv.Close()

	sample, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(err)
	require.Equal(32.5, sample.ImportCPerKWh)
	require.Equal(-1.8, sample.FeedInCPerKWh)
	require.Equal(time.UnixMilli(1748779200000), sample.FetchedAt)
}

func TestFetchDefaultsTimestampToNow(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"import_c_per_kwh": 30, "feed_in_c_per_kwh": 4}`))
	}))
	defer srv.Close()

	before := time.Now()
	sample, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(err)
	require.False(sample.FetchedAt.Before(before))
}

func TestFetchRejectsHTTPError(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(err)
}

func TestFetchRejectsMalformedBody(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(err)
}

func TestFetchHonorsContextCancel(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, 5*time.Second).Fetch(ctx)
	require.Error(err)
}
