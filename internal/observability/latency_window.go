package observability

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// StageLatency summarizes the recent samples of one turn stage.
type StageLatency struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	Failures    int     `json:"failures"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []StageLatency   `json:"stages"`
	Events      map[string]int64 `json:"events,omitempty"`
}

// stageBudgets are p95 latency budgets for the relay stages. Stages without
// an entry are reported without a budget.
var stageBudgets = map[string]time.Duration{
	"history_load":   50 * time.Millisecond,
	"history_append": 50 * time.Millisecond,
	"resolve_file":   800 * time.Millisecond,
	"download":       800 * time.Millisecond,
	"transcribe":     2500 * time.Millisecond,
	"reply":          4 * time.Second,
	"image_prompt":   4 * time.Second,
	"voice_synth":    3 * time.Second,
	"image_synth":    9 * time.Second,
	"send_text":      1200 * time.Millisecond,
	"send_voice":     1200 * time.Millisecond,
	"send_image":     1200 * time.Millisecond,
	"turn_total":     20 * time.Second,
}

// ring keeps the last len(samples) durations of a stage.
type ring struct {
	samples  []time.Duration
	size     int
	pos      int
	failures int
}

func (r *ring) add(d time.Duration) {
	r.samples[r.pos] = d
	r.pos = (r.pos + 1) % len(r.samples)
	if r.size < len(r.samples) {
		r.size++
	}
}

func (r *ring) last() time.Duration {
	return r.samples[(r.pos-1+len(r.samples))%len(r.samples)]
}

type latencyWindow struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring
	events   map[string]int64
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = 256
	}
	return &latencyWindow{
		capacity: capacity,
		rings:    make(map[string]*ring),
		events:   make(map[string]int64),
	}
}

func (w *latencyWindow) ringFor(stage string) *ring {
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{samples: make([]time.Duration, w.capacity)}
		w.rings[stage] = r
	}
	return r
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	w.ringFor(stage).add(d)
	w.mu.Unlock()
}

func (w *latencyWindow) fail(stage string) {
	if stage == "" {
		return
	}
	w.mu.Lock()
	w.ringFor(stage).failures++
	w.mu.Unlock()
}

func (w *latencyWindow) count(event string) {
	if event == "" {
		return
	}
	w.mu.Lock()
	w.events[event]++
	w.mu.Unlock()
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	w.rings = make(map[string]*ring)
	w.events = make(map[string]int64)
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageLatency, 0, len(w.rings)),
	}
	for _, stage := range slices.Sorted(maps.Keys(w.rings)) {
		snap.Stages = append(snap.Stages, summarize(stage, w.rings[stage]))
	}
	if len(w.events) > 0 {
		snap.Events = maps.Clone(w.events)
	}
	return snap
}

func summarize(stage string, r *ring) StageLatency {
	out := StageLatency{Stage: stage, Samples: r.size, Failures: r.failures}
	if budget, ok := stageBudgets[stage]; ok {
		out.BudgetP95MS = millis(budget)
	}
	if r.size == 0 {
		return out
	}
	sorted := slices.Clone(r.samples[:r.size])
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	out.LastMS = millis(r.last())
	out.AvgMS = millis(total / time.Duration(r.size))
	out.P50MS = millis(nearestRank(sorted, 50))
	out.P95MS = millis(nearestRank(sorted, 95))
	out.MaxMS = millis(sorted[len(sorted)-1])
	out.OverBudget = out.BudgetP95MS > 0 && out.P95MS > out.BudgetP95MS
	return out
}

// nearestRank returns the pct-th percentile of an ascending slice.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()/10) / 100
}
