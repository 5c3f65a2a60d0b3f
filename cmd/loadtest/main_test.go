package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stockServer отвечает как витрина: 201 пока есть остаток, затем 409.
type stockServer struct {
	mu       sync.Mutex
	stock    int64
	keys     map[string]int
	stockSet int
}

func newStockServer(t *testing.T, stock int64) (*stockServer, *httptest.Server) {
	t.Helper()

	s := &stockServer{stock: stock, keys: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *stockServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/v1/admin/products/"):
		if r.Header.Get(headerUserRole) != "admin" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body stockBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.stock = body.Quantity
		s.stockSet++
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/orders":
		if r.Header.Get(headerUserID) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.keys[r.Header.Get(headerIdempotency)]++
		var body placeOrderBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.CartItems) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		qty := body.CartItems[0].Quantity
		if s.stock < qty {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.stock -= qty
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.baseURL)
	assert.Equal(t, 200, cfg.total)
	assert.False(t, cfg.totalSet)
	assert.Equal(t, 5*time.Second, cfg.timeout)
	assert.False(t, cfg.stockSet)
	assert.True(t, cfg.idempotent)
	assert.Equal(t, "10", cfg.price.String())
}

func TestParseConfig_Overrides(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-addr", "http://shop:8080/",
		"-total", "50",
		"-duration", "10s",
		"-stock", "0",
		"-quantity", "2",
		"-price", "3.50",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://shop:8080", cfg.baseURL)
	assert.True(t, cfg.totalSet)
	assert.Equal(t, 10*time.Second, cfg.duration)
	assert.True(t, cfg.stockSet)
	assert.EqualValues(t, 0, cfg.stock)
	assert.EqualValues(t, 2, cfg.quantity)
	assert.Equal(t, "3.5", cfg.price.String())
}

func TestParseConfig_Invalid(t *testing.T) {
	cases := map[string][]string{
		"bad timeout":      {"-timeout", "soon"},
		"zero timeout":     {"-timeout", "0s"},
		"negative dur":     {"-duration", "-1s"},
		"zero total":       {"-total", "0"},
		"zero concurrency": {"-concurrency", "0"},
		"zero quantity":    {"-quantity", "0"},
		"bad price":        {"-price", "free"},
		"zero price":       {"-price", "0"},
		"empty product":    {"-product", " "},
		"empty user tag":   {"-user-tag", ""},
		"unknown flag":     {"-mode", "create"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args)
			require.Error(t, err)
		})
	}
}

func TestRun_ConcurrentPlacementNeverOversells(t *testing.T) {
	stub, srv := newStockServer(t, 1000)

	cfg, err := parseConfig([]string{
		"-addr", srv.URL,
		"-total", "40",
		"-concurrency", "10",
		"-stock", "5",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	result, err := run(context.Background(), cfg, srv.Client(), &out)
	require.NoError(t, err)

	assert.EqualValues(t, 40, result.TotalScenarios)
	assert.EqualValues(t, 5, result.Created)
	assert.EqualValues(t, 35, result.OutOfStock)
	assert.EqualValues(t, 0, result.FailedScenarios)
	assert.False(t, result.Oversold)
	require.NotNil(t, result.InitialStock)
	assert.EqualValues(t, 5, *result.InitialStock)

	assert.Equal(t, 1, stub.stockSet)
	assert.Len(t, stub.keys, 40)
	assert.Contains(t, out.String(), "created=5 out_of_stock=35")
	assert.Contains(t, out.String(), "oversold=false")
	assert.EqualValues(t, 1, result.Methods[methodSetStock].Success)
}

func TestRun_WithoutIdempotencyKeys(t *testing.T) {
	stub, srv := newStockServer(t, 3)

	cfg, err := parseConfig([]string{"-addr", srv.URL, "-total", "4", "-concurrency", "2", "-idempotent=false"})
	require.NoError(t, err)

	result, err := run(context.Background(), cfg, srv.Client(), &bytes.Buffer{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, result.Created)
	assert.EqualValues(t, 1, result.OutOfStock)
	assert.Nil(t, result.InitialStock)
	assert.Equal(t, 0, stub.stockSet)
	assert.Equal(t, map[string]int{"": 4}, stub.keys)
}

func TestRun_UnexpectedStatusesAreFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg, err := parseConfig([]string{"-addr", srv.URL, "-total", "3", "-concurrency", "1"})
	require.NoError(t, err)

	result, err := run(context.Background(), cfg, srv.Client(), &bytes.Buffer{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, result.FailedScenarios)
	assert.InDelta(t, 1.0, result.ErrorRate, 1e-9)
	assert.EqualValues(t, 3, result.Methods[methodPlaceOrder].Outcomes["http_500"])
}

func TestRun_SetStockFailureStopsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	cfg, err := parseConfig([]string{"-addr", srv.URL, "-stock", "1"})
	require.NoError(t, err)

	_, err = run(context.Background(), cfg, srv.Client(), &bytes.Buffer{})
	require.ErrorContains(t, err, "set stock")
}

func TestReport_CheckOversell(t *testing.T) {
	cfg := config{stock: 4, stockSet: true, quantity: 2}

	r := report{Created: 2}
	r.checkOversell(cfg)
	assert.False(t, r.Oversold)

	r = report{Created: 3}
	r.checkOversell(cfg)
	assert.True(t, r.Oversold)

	r = report{Created: 100}
	r.checkOversell(config{quantity: 1})
	assert.False(t, r.Oversold)
	assert.Nil(t, r.InitialStock)
}

func TestPlacementOutcome(t *testing.T) {
	assert.Equal(t, outcomeCreated, placementOutcome(http.StatusCreated, nil))
	assert.Equal(t, outcomeOutOfStock, placementOutcome(http.StatusConflict, nil))
	assert.Equal(t, "http_422", placementOutcome(http.StatusUnprocessableEntity, nil))
	assert.Equal(t, "transport_error", placementOutcome(0, context.DeadlineExceeded))
}

func TestDispatchJobs_DurationWithMaxTotal(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{duration: time.Second, total: 5, totalSet: true})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBuildLatencySummary(t *testing.T) {
	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
	assert.InDelta(t, 2.5, summary.P50, 1e-9)
}

func TestRunTarget(t *testing.T) {
	assert.Equal(t, "count:10", runTarget(config{total: 10}))
	assert.Equal(t, "duration:1m0s", runTarget(config{duration: time.Minute}))
	assert.Equal(t, "duration:1m0s,max-total:7", runTarget(config{duration: time.Minute, total: 7, totalSet: true}))
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	require.NoError(t, writeJSONReport(path, report{TotalScenarios: 3, Created: 2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 2, decoded.Created)

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))
}
