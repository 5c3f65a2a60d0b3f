package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	headerUserID      = "X-User-ID"
	headerUserRole    = "X-User-Role"
	headerIdempotency = "Idempotency-Key"

	methodPlaceOrder = "PlaceOrder"
	methodSetStock   = "SetStock"
	methodScenario   = "scenario"

	outcomeCreated    = "created"
	outcomeOutOfStock = "out_of_stock"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	productID   string
	quantity    int64
	price       decimal.Decimal
	stock       int64
	stockSet    bool
	userTag     string
	idempotent  bool
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	Created           int64                   `json:"created"`
	OutOfStock        int64                   `json:"out_of_stock"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	InitialStock      *int64                  `json:"initial_stock,omitempty"`
	Oversold          bool                    `json:"oversold"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов. Отказ по остатку считается штатным исходом, а не ошибкой.
func (c *collector) record(method string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			outcomes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if isExpectedOutcome(outcome) {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func isExpectedOutcome(outcome string) bool {
	return outcome == outcomeCreated || outcome == outcomeOutOfStock || outcome == "ok"
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if stats := c.methods[methodScenario]; stats != nil {
		result.TotalScenarios = stats.calls
		result.Created = stats.outcomes[outcomeCreated]
		result.OutOfStock = stats.outcomes[outcomeOutOfStock]
		result.FailedScenarios = stats.failed
		result.ErrorRate = ratio(stats.failed, stats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(stats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for outcome, count := range stats.outcomes {
			outcomes[outcome] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

// checkOversell сравнивает число созданных заказов с остатком, выставленным перед прогоном.
func (r *report) checkOversell(cfg config) {
	if !cfg.stockSet {
		return
	}
	stock := cfg.stock
	r.InitialStock = &stock
	r.Oversold = r.Created*cfg.quantity > stock
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var timeoutValue, durationValue, priceValue string
	stock := int64(-1)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "storefront HTTP base URL")
	fs.IntVar(&cfg.total, "total", 200, "total placements in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&cfg.productID, "product", "load-item", "product id every worker buys")
	fs.Int64Var(&cfg.quantity, "quantity", 1, "units per order")
	fs.StringVar(&priceValue, "price", "10.00", "product price used when -stock creates the product")
	fs.Int64Var(&stock, "stock", -1, "set tracked stock before the run; negative keeps the current stock")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.BoolVar(&cfg.idempotent, "idempotent", true, "send a unique Idempotency-Key with every placement")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})
	if stock >= 0 {
		cfg.stock = stock
		cfg.stockSet = true
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if cfg.baseURL == "" {
		return cfg, errors.New("addr is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if !cfg.price.IsPositive() {
		return cfg, errors.New("price must be > 0")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product is required")
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		return cfg, errors.New("user-tag is required")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, &http.Client{}, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.Oversold {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, client *http.Client, out io.Writer) (report, error) {
	col := newCollector()
	if cfg.stockSet {
		if err := setStock(ctx, client, cfg, col); err != nil {
			return report{}, fmt.Errorf("set stock: %w", err)
		}
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, cfg, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.checkOversell(cfg)
	printReport(out, result, cfg)
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type cartLine struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type placeOrderBody struct {
	CartItems     []cartLine      `json:"cartItems"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	UserName      string          `json:"userName"`
	PaymentMethod string          `json:"paymentMethod"`
}

func runScenario(ctx context.Context, client *http.Client, cfg config, index int, runID string, col *collector) {
	start := time.Now()
	outcome := placeOrder(ctx, client, cfg, index, runID, col)
	col.record(methodScenario, time.Since(start), outcome)
}

func placeOrder(ctx context.Context, client *http.Client, cfg config, index int, runID string, col *collector) string {
	userID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)
	body := placeOrderBody{
		CartItems:     []cartLine{{ProductID: cfg.productID, Quantity: cfg.quantity}},
		TotalAmount:   cfg.price.Mul(decimal.NewFromInt(cfg.quantity)),
		UserName:      userID,
		PaymentMethod: "card",
	}
	headers := map[string]string{headerUserID: userID}
	if cfg.idempotent {
		headers[headerIdempotency] = fmt.Sprintf("lt-place-%s-%d", runID, index)
	}

	start := time.Now()
	status, err := doJSON(ctx, client, cfg, http.MethodPost, "/api/v1/orders", headers, body)
	outcome := placementOutcome(status, err)
	col.record(methodPlaceOrder, time.Since(start), outcome)
	return outcome
}

func placementOutcome(status int, err error) string {
	switch {
	case err != nil:
		return "transport_error"
	case status == http.StatusCreated:
		return outcomeCreated
	case status == http.StatusConflict:
		return outcomeOutOfStock
	default:
		return "http_" + strconv.Itoa(status)
	}
}

type stockBody struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	TrackQuantity bool            `json:"trackQuantity"`
}

func setStock(ctx context.Context, client *http.Client, cfg config, col *collector) error {
	headers := map[string]string{
		headerUserID:   cfg.userTag + "-admin",
		headerUserRole: "admin",
	}
	body := stockBody{
		Name:          cfg.productID,
		Price:         cfg.price,
		Quantity:      cfg.stock,
		TrackQuantity: true,
	}

	start := time.Now()
	status, err := doJSON(ctx, client, cfg, http.MethodPut, "/api/v1/admin/products/"+cfg.productID+"/stock", headers, body)
	outcome := "ok"
	if err != nil || status != http.StatusOK {
		outcome = placementOutcome(status, err)
	}
	col.record(methodSetStock, time.Since(start), outcome)

	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, cfg config, method, path string, headers map[string]string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "product=%s run=%s total=%d created=%d out_of_stock=%d failed=%d error_rate=%.4f\n",
		cfg.productID,
		runTarget(cfg),
		result.TotalScenarios,
		result.Created,
		result.OutOfStock,
		result.FailedScenarios,
		result.ErrorRate,
	)
	if result.InitialStock != nil {
		_, _ = fmt.Fprintf(out, "initial_stock=%d sold_units=%d oversold=%t\n",
			*result.InitialStock,
			result.Created*cfg.quantity,
			result.Oversold,
		)
	}
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == methodScenario {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
