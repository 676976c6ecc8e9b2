package httpapi

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// timingSamples is how many recent requests each route keeps for percentile
// reporting.
const timingSamples = 100

// timingRegistry tracks per-route request durations over a sliding window.
type timingRegistry struct {
	mu     sync.Mutex
	routes map[string][]time.Duration
}

func newTimingRegistry() *timingRegistry {
	return &timingRegistry{routes: map[string][]time.Duration{}}
}

func (t *timingRegistry) record(route string, d time.Duration) {
	t.mu.Lock()
	samples := append(t.routes[route], d)
	if len(samples) > timingSamples {
		samples = samples[len(samples)-timingSamples:]
	}
	t.routes[route] = samples
	t.mu.Unlock()
}

// RouteTiming is the report row for one route.
type RouteTiming struct {
	Route   string  `json:"route"`
	Count   int     `json:"count"`
	P50Ms   float64 `json:"p50Ms"`
	P95Ms   float64 `json:"p95Ms"`
	MaxMs   float64 `json:"maxMs"`
	TotalMs float64 `json:"totalMs"`
}

// report computes p50/p95/max per route over the retained samples.
func (t *timingRegistry) report() []RouteTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]RouteTiming, 0, len(t.routes))
	for route, samples := range t.routes {
		if len(samples) == 0 {
			continue
		}
		sorted := make([]time.Duration, len(samples))
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		out = append(out, RouteTiming{
			Route:   route,
			Count:   len(sorted),
			P50Ms:   ms(percentile(sorted, 50)),
			P95Ms:   ms(percentile(sorted, 95)),
			MaxMs:   ms(sorted[len(sorted)-1]),
			TotalMs: ms(total),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)*p + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// timingMiddleware records request durations keyed by method and route root.
func timingMiddleware(reg *timingRegistry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		reg.record(r.Method+" "+routeRoot(r.URL.Path), time.Since(start))
	})
}

// routeRoot collapses parameterized paths so per-session URLs share a bucket.
func routeRoot(path string) string {
	if path == "/" {
		return "/"
	}
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i] + "/*"
		}
	}
	return path
}
