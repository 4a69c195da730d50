package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackfiller struct {
	from, to time.Time
	n        int
	err      error
	called   bool
}

func (f *fakeBackfiller) Backfill(_ context.Context, from, to time.Time) (int, error) {
	f.called = true
	f.from, f.to = from, to
	return f.n, f.err
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(backfiller *fakeBackfiller, pinger *fakePinger) *Server {
	return New(Config{
		DB:         pinger,
		Backfiller: backfiller,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Port:       0,
	})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeBackfiller{}, &fakePinger{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsDatabase(t *testing.T) {
	pinger := &fakePinger{}
	srv := newTestServer(&fakeBackfiller{}, pinger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	pinger.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBackfillRunsRange(t *testing.T) {
	backfiller := &fakeBackfiller{n: 7}
	srv := newTestServer(backfiller, &fakePinger{})

	body := strings.NewReader(`{"from":"2024-01-01","to":"2024-01-31"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backfill", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":7`)
	assert.True(t, backfiller.called)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), backfiller.from)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), backfiller.to)
}

func TestBackfillRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json at all`},
		{"bad date format", `{"from":"01.01.2024","to":"2024-01-31"}`},
		{"missing to", `{"from":"2024-01-01"}`},
		{"inverted range", `{"from":"2024-02-01","to":"2024-01-01"}`},
		{"unknown field", `{"from":"2024-01-01","to":"2024-01-31","force":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backfiller := &fakeBackfiller{}
			srv := newTestServer(backfiller, &fakePinger{})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec,
				httptest.NewRequest(http.MethodPost, "/backfill", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, backfiller.called)
		})
	}
}

func TestBackfillFailurePropagates(t *testing.T) {
	srv := newTestServer(&fakeBackfiller{err: errors.New("upstream down")}, &fakePinger{})

	body := strings.NewReader(`{"from":"2024-01-01","to":"2024-01-31"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backfill", body))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeBackfiller{}, &fakePinger{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backfill", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
