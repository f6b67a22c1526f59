package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewHTTP(reg, reg)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/test", "/notfound"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if val := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200")); val != 1 {
		t.Errorf("Expected requests for GET /test to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "404")); val != 1 {
		t.Errorf("Expected requests for GET /notfound to be 1, got %f", val)
	}
	if val := testutil.CollectAndCount(m.requestDuration); val != 2 {
		t.Errorf("Expected two duration series, got %d", val)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewHTTP(reg, reg)
	m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `http_requests_total{code="200",method="GET"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", body)
	}
}
