// Package health implements the shared health surface every process binds
// at 0.0.0.0:8080 (spec §4.6), modeled on the teacher's internal/api route
// registration style (Go 1.22+ ServeMux method+pattern patterns).
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Thresholds mirror spec §4.4/§4.5 defaults; every Status uses them.
const (
	DefaultConsecutiveFailureMax = 5
	DefaultGatewayFailureMax     = 5
	HealthyDiscordUpdateMaxAge   = 300 * time.Second
)

// Status holds the mutable freshness/failure counters one process exposes
// over /health. Safe for concurrent use: the update loop writes, the HTTP
// handler reads.
type Status struct {
	mu sync.RWMutex

	asset string // empty for the Aggregator and Downsampler

	lastPriceUpdate   time.Time
	lastDiscordUpdate time.Time

	consecutiveFailures int64
	gatewayFailures     int64
	recoveryCount       int64

	consecutiveFailureMax int
	gatewayFailureMax     int

	// hasDiscord is false for processes with no presence surface
	// (Aggregator, Downsampler); healthy then depends on price freshness
	// only.
	hasDiscord bool

	lastCyclePromoted int64
	lastCycleExpired  int64
}

// New creates a Status for a presence worker bound to asset.
func New(asset string) *Status {
	return &Status{
		asset:                 asset,
		consecutiveFailureMax: DefaultConsecutiveFailureMax,
		gatewayFailureMax:     DefaultGatewayFailureMax,
		hasDiscord:            true,
	}
}

// NewAssetless creates a Status for the Aggregator/Downsampler, which have
// no presence surface and so report healthy based on price freshness alone.
func NewAssetless() *Status {
	return &Status{
		consecutiveFailureMax: DefaultConsecutiveFailureMax,
		gatewayFailureMax:     DefaultGatewayFailureMax,
		hasDiscord:            false,
	}
}

// RecordPriceUpdate marks a successful price refresh.
func (s *Status) RecordPriceUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPriceUpdate = time.Now()
}

// RecordDiscordUpdate marks a successful presence push and resets the
// consecutive failure counter (spec §4.4 update loop step 6).
func (s *Status) RecordDiscordUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDiscordUpdate = time.Now()
	atomic.StoreInt64(&s.consecutiveFailures, 0)
}

// RecordIterationFailure increments the consecutive full-iteration failure
// counter (spec §4.4 Degraded transition).
func (s *Status) RecordIterationFailure() int64 {
	return atomic.AddInt64(&s.consecutiveFailures, 1)
}

// RecordGatewayFailure increments the gateway_failures counter (spec §4.5).
func (s *Status) RecordGatewayFailure() int64 {
	return atomic.AddInt64(&s.gatewayFailures, 1)
}

// ResetGatewayFailures clears the gateway_failures counter on a successful
// send.
func (s *Status) ResetGatewayFailures() {
	atomic.StoreInt64(&s.gatewayFailures, 0)
}

// RecordRecovery increments recovery_count on entering Degraded recovery.
func (s *Status) RecordRecovery() {
	atomic.AddInt64(&s.recoveryCount, 1)
}

// RecordCycleCounts records the rows promoted/expired in the most recent
// Downsampler cycle, surfaced on the /api/health/detail introspection route.
func (s *Status) RecordCycleCounts(promoted, expired int64) {
	atomic.StoreInt64(&s.lastCyclePromoted, promoted)
	atomic.StoreInt64(&s.lastCycleExpired, expired)
}

// ConsecutiveFailures returns the current consecutive full-iteration
// failure count.
func (s *Status) ConsecutiveFailures() int64 {
	return atomic.LoadInt64(&s.consecutiveFailures)
}

// GatewayFailures returns the current gateway failure count.
func (s *Status) GatewayFailures() int64 {
	return atomic.LoadInt64(&s.gatewayFailures)
}

// ConsecutiveFailureMax returns the F_consec_max threshold.
func (s *Status) ConsecutiveFailureMax() int {
	return s.consecutiveFailureMax
}

// document is the wire shape for GET /health (spec §4.6).
type document struct {
	Healthy                  bool   `json:"healthy"`
	Asset                    string `json:"asset"`
	SecondsSincePriceUpdate  int64  `json:"seconds_since_price_update"`
	SecondsSinceDiscordUpdate int64 `json:"seconds_since_discord_update"`
	ConsecutiveFailures      int64  `json:"consecutive_failures"`
	GatewayFailures          int64  `json:"gateway_failures"`
	RecoveryCount            int64  `json:"recovery_count"`
}

func (s *Status) snapshot() document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var secsPrice, secsDiscord int64
	if s.lastPriceUpdate.IsZero() {
		secsPrice = 1 << 30
	} else {
		secsPrice = int64(now.Sub(s.lastPriceUpdate).Seconds())
	}
	if s.lastDiscordUpdate.IsZero() {
		secsDiscord = 1 << 30
	} else {
		secsDiscord = int64(now.Sub(s.lastDiscordUpdate).Seconds())
	}

	consecutive := atomic.LoadInt64(&s.consecutiveFailures)
	gatewayFail := atomic.LoadInt64(&s.gatewayFailures)
	recovery := atomic.LoadInt64(&s.recoveryCount)

	healthy := consecutive < int64(s.consecutiveFailureMax) && gatewayFail < int64(s.gatewayFailureMax)
	if s.hasDiscord {
		healthy = healthy && secsDiscord <= int64(HealthyDiscordUpdateMaxAge.Seconds())
	} else {
		healthy = healthy && secsPrice <= int64(HealthyDiscordUpdateMaxAge.Seconds())
	}

	return document{
		Healthy:                   healthy,
		Asset:                     s.asset,
		SecondsSincePriceUpdate:   secsPrice,
		SecondsSinceDiscordUpdate: secsDiscord,
		ConsecutiveFailures:       consecutive,
		GatewayFailures:           gatewayFail,
		RecoveryCount:             recovery,
	}
}

// Handler returns the GET /health HTTP handler: 200 when healthy, 503
// otherwise.
func (s *Status) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := s.snapshot()
		w.Header().Set("Content-Type", "application/json")
		if !doc.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(doc)
	}
}

// detailDocument is the wire shape for the opt-in
// GET /api/health/detail introspection route (SPEC_FULL.md §3): the
// Aggregator and Downsampler expose cycle counters beyond the plain
// healthy/unhealthy verdict of /health.
type detailDocument struct {
	document
	LastCycleRowsPromoted int64 `json:"last_cycle_rows_promoted"`
	LastCycleRowsExpired  int64 `json:"last_cycle_rows_expired"`
}

// DetailHandler returns the GET /api/health/detail handler, always 200 —
// this route is an operator introspection aid, not a liveness probe.
func (s *Status) DetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := detailDocument{
			document:              s.snapshot(),
			LastCycleRowsPromoted: atomic.LoadInt64(&s.lastCyclePromoted),
			LastCycleRowsExpired:  atomic.LoadInt64(&s.lastCycleExpired),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

// Serve starts the health HTTP server bound to 0.0.0.0:port in a background
// goroutine and returns it at once; callers stop it with Shutdown.
func Serve(status *Status, port int, extra map[string]http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", status.Handler())
	for pattern, h := range extra {
		mux.HandleFunc(pattern, h)
	}
	srv := &http.Server{Addr: formatAddr(port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return srv
}

func formatAddr(port int) string {
	return fmt.Sprintf("0.0.0.0:%d", port)
}
