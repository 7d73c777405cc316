package ats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func recordingClient(t *testing.T, delays *[]time.Duration) *Client {
	t.Helper()
	return NewClient(WithSleep(func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}))
}

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  300 * time.Millisecond,
		1:  600 * time.Millisecond,
		2:  1200 * time.Millisecond,
		4:  4800 * time.Millisecond,
		5:  5 * time.Second,
		40: 5 * time.Second,
	}
	for n, want := range cases {
		if got := Backoff(n); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestGetJSONRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"jobs":[{"title":"Go Engineer"}]}`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := recordingClient(t, &delays)

	var out struct {
		Jobs []struct {
			Title string `json:"title"`
		} `json:"jobs"`
	}
	found, err := c.GetJSON(context.Background(), srv.URL, &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !found || len(out.Jobs) != 1 || out.Jobs[0].Title != "Go Engineer" {
		t.Fatalf("unexpected result found=%v out=%+v", found, out)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want 3", hits.Load())
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}
	if !reflect.DeepEqual(delays, want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
}

func TestGetJSONNotFoundIsEmpty(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := recordingClient(t, &delays)

	var v map[string]any
	found, err := c.GetJSON(context.Background(), srv.URL, &v)
	if err != nil || found {
		t.Fatalf("found=%v err=%v, want false/nil", found, err)
	}
	if hits.Load() != 1 || len(delays) != 0 {
		t.Fatalf("404 must not be retried: hits=%d delays=%v", hits.Load(), delays)
	}
}

func TestGetJSONEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var v map[string]any
	found, err := NewClient().GetJSON(context.Background(), srv.URL, &v)
	if err != nil || found {
		t.Fatalf("found=%v err=%v, want false/nil", found, err)
	}
}

func TestGetJSONExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := recordingClient(t, &delays)

	var v map[string]any
	_, err := c.GetJSON(context.Background(), srv.URL, &v)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want wrapped 503 StatusError", err)
	}
	if hits.Load() != DefaultMaxAttempts {
		t.Fatalf("hits = %d, want %d", hits.Load(), DefaultMaxAttempts)
	}
	if len(delays) != DefaultMaxAttempts-1 {
		t.Fatalf("delays = %v", delays)
	}
}

func TestGetJSONClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var v map[string]any
	_, err := NewClient().GetJSON(context.Background(), srv.URL, &v)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatal("403 should not count as exhausted")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestGetJSONSendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var v map[string]any
	if _, err := NewClient(WithUserAgent("probe/2")).GetJSON(context.Background(), srv.URL, &v); err != nil {
		t.Fatal(err)
	}
	if got, _ := ua.Load().(string); got != "probe/2" {
		t.Fatalf("User-Agent = %q", got)
	}
}

func TestGetJSONStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	var v map[string]any
	_, err := c.GetJSON(ctx, srv.URL, &v)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
