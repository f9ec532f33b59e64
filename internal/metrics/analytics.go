package metrics

import (
	"sort"
	"sync"
	"time"
)

// RequestRecord captures one completed (or failed) request through the
// routing pipeline for the dashboard's analytics views.
type RequestRecord struct {
	Timestamp    time.Time
	ModelAlias   string // rainymodel/auto, /chat, /code, /agent
	Upstream     string // hf, ollama, openrouter, openai, anthropic, ...
	Route        string // free, internal, direct, premium, error
	ActualModel  string
	Policy       string // auto, premium, free, uncensored
	LatencyMS    int
	Success      bool
	StatusCode   int
	IsStream     bool
	InputTokens  int
	OutputTokens int
	ErrorType    string
	ErrorMessage string
	FallbackFrom string
}

// LogEntry is one structured system-log line surfaced through the
// dashboard's system-log view, distinct from the ambient zap logger
// output — this is a bounded, queryable-by-level in-memory tail.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Extra     map[string]any
}

// costPer1MTokens is the static per-upstream (input, output) rate table in
// USD per million tokens, used only to estimate dashboard spend — it is
// never consulted for billing or quota enforcement.
var costPer1MTokens = map[string][2]float64{
	"openai":        {2.50, 10.00},
	"anthropic":     {3.00, 15.00},
	"xai":           {2.00, 10.00},
	"deepseek":      {0.27, 1.10},
	"gemini":        {0.10, 0.40},
	"openrouter":    {1.00, 5.00},
	"hf":            {0.0, 0.0},
	"ollama":        {0.0, 0.0},
	"ollamafreeapi": {0.0, 0.0},
}

func cost(upstream string, inputTokens, outputTokens int) float64 {
	rate, ok := costPer1MTokens[upstream]
	if !ok {
		rate = [2]float64{1.0, 5.0}
	}
	return (float64(inputTokens)*rate[0] + float64(outputTokens)*rate[1]) / 1_000_000
}

// Cost is the exported form of the per-upstream cost estimate, used by the
// request pipeline to feed the ops-facing Collector's cost counter with the
// same rate table the dashboard's financial aggregation uses.
func Cost(upstream string, inputTokens, outputTokens int) float64 {
	return cost(upstream, inputTokens, outputTokens)
}

// percentile returns the p-th percentile (0..1) of sorted ascending values
// using the same nearest-rank indexing as the original analytics engine.
func percentile(sortedVals []int, p float64) int {
	if len(sortedVals) == 0 {
		return 0
	}
	idx := int(float64(len(sortedVals)) * p)
	if idx >= len(sortedVals) {
		idx = len(sortedVals) - 1
	}
	return sortedVals[idx]
}

func mean(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return sum / len(vals)
}

func median(sortedVals []int) int {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sortedVals[n/2]
	}
	return (sortedVals[n/2-1] + sortedVals[n/2]) / 2
}

func round(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int(v*mult+0.5)) / mult
}

const (
	defaultMaxRecords = 50_000
	defaultMaxLogs    = 10_000
)

// AnalyticsStore is a thread-safe, bounded, in-memory request/log store.
// Every read snapshots the underlying slice under the lock and computes
// aggregates outside it, so long aggregation work never blocks concurrent
// recording.
type AnalyticsStore struct {
	mu         sync.Mutex
	records    []RequestRecord
	logs       []LogEntry
	maxRecords int
	maxLogs    int
	startedAt  time.Time
}

// NewAnalyticsStore builds an AnalyticsStore bounded to maxRecords request
// records and maxLogs log lines; zero or negative values fall back to the
// original engine's defaults (50,000 records / 10,000 log lines).
func NewAnalyticsStore(maxRecords, maxLogs int) *AnalyticsStore {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	if maxLogs <= 0 {
		maxLogs = defaultMaxLogs
	}
	return &AnalyticsStore{maxRecords: maxRecords, maxLogs: maxLogs, startedAt: time.Now()}
}

// Record appends a completed request, evicting the oldest record once the
// store is at capacity.
func (s *AnalyticsStore) Record(rec RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.maxRecords {
		s.records = s.records[len(s.records)-s.maxRecords:]
	}
}

// Log appends a system-log line, evicting the oldest line once the store
// is at capacity.
func (s *AnalyticsStore) Log(level, message string, extra map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, LogEntry{Timestamp: time.Now().UTC(), Level: level, Message: message, Extra: extra})
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}
}

func (s *AnalyticsStore) snapshotRecords() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *AnalyticsStore) snapshotLogs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Overview is the aggregate summary the dashboard's landing view renders.
type Overview struct {
	UptimeS      int     `json:"uptime_s"`
	Total        int     `json:"total"`
	OK           int     `json:"ok"`
	Err          int     `json:"err"`
	SuccessPct   float64 `json:"success_pct"`
	AvgMS        int     `json:"avg_ms"`
	MedMS        int     `json:"med_ms"`
	P95MS        int     `json:"p95_ms"`
	P99MS        int     `json:"p99_ms"`
	MinMS        int     `json:"min_ms"`
	MaxMS        int     `json:"max_ms"`
	RPM          int     `json:"rpm"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Providers    int     `json:"providers"`
	StreamPct    float64 `json:"stream_pct"`
}

// GetOverview implements the "overview" dashboard aggregation.
func (s *AnalyticsStore) GetOverview() Overview {
	recs := s.snapshotRecords()
	uptime := int(time.Since(s.startedAt).Seconds())
	if len(recs) == 0 {
		return Overview{UptimeS: uptime}
	}

	ok := 0
	lats := make([]int, 0, len(recs))
	inputTokens, outputTokens, streams, recent := 0, 0, 0, 0
	providers := map[string]bool{}
	var totalCost float64
	now := time.Now()
	for _, r := range recs {
		if r.Success {
			ok++
		}
		lats = append(lats, r.LatencyMS)
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
		if r.IsStream {
			streams++
		}
		providers[r.Upstream] = true
		totalCost += cost(r.Upstream, r.InputTokens, r.OutputTokens)
		if now.Sub(r.Timestamp) < time.Minute {
			recent++
		}
	}
	sort.Ints(lats)

	return Overview{
		UptimeS:      uptime,
		Total:        len(recs),
		OK:           ok,
		Err:          len(recs) - ok,
		SuccessPct:   round(float64(ok)/float64(len(recs))*100, 2),
		AvgMS:        mean(lats),
		MedMS:        median(lats),
		P95MS:        percentile(lats, 0.95),
		P99MS:        percentile(lats, 0.99),
		MinMS:        lats[0],
		MaxMS:        lats[len(lats)-1],
		RPM:          recent,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      round(totalCost, 4),
		Providers:    len(providers),
		StreamPct:    round(float64(streams)/float64(len(recs))*100, 1),
	}
}

// ProviderStats is one row of the per-upstream breakdown.
type ProviderStats struct {
	Upstream     string  `json:"upstream"`
	Requests     int     `json:"requests"`
	OK           int     `json:"ok"`
	Err          int     `json:"err"`
	SuccessPct   float64 `json:"success_pct"`
	AvgMS        int     `json:"avg_ms"`
	P95MS        int     `json:"p95_ms"`
	MinMS        int     `json:"min_ms"`
	MaxMS        int     `json:"max_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// GetProviders implements the per-upstream dashboard aggregation.
func (s *AnalyticsStore) GetProviders() []ProviderStats {
	recs := s.snapshotRecords()
	groups := map[string][]RequestRecord{}
	for _, r := range recs {
		groups[r.Upstream] = append(groups[r.Upstream], r)
	}

	out := make([]ProviderStats, 0, len(groups))
	for _, up := range sortedKeys(groups) {
		rs := groups[up]
		ok, inp, otp := 0, 0, 0
		lats := make([]int, 0, len(rs))
		for _, r := range rs {
			if r.Success {
				ok++
			}
			lats = append(lats, r.LatencyMS)
			inp += r.InputTokens
			otp += r.OutputTokens
		}
		sort.Ints(lats)
		out = append(out, ProviderStats{
			Upstream:     up,
			Requests:     len(rs),
			OK:           ok,
			Err:          len(rs) - ok,
			SuccessPct:   round(float64(ok)/float64(len(rs))*100, 1),
			AvgMS:        mean(lats),
			P95MS:        percentile(lats, 0.95),
			MinMS:        lats[0],
			MaxMS:        lats[len(lats)-1],
			InputTokens:  inp,
			OutputTokens: otp,
			CostUSD:      round(cost(up, inp, otp), 6),
		})
	}
	return out
}

// ModelStats is one row of the per-alias dashboard aggregation.
type ModelStats struct {
	Model      string  `json:"model"`
	Requests   int     `json:"requests"`
	SuccessPct float64 `json:"success_pct"`
	AvgMS      int     `json:"avg_ms"`
}

// GetModels implements the per-model-alias dashboard aggregation.
func (s *AnalyticsStore) GetModels() []ModelStats {
	recs := s.snapshotRecords()
	groups := map[string][]RequestRecord{}
	for _, r := range recs {
		groups[r.ModelAlias] = append(groups[r.ModelAlias], r)
	}

	out := make([]ModelStats, 0, len(groups))
	for _, m := range sortedKeys(groups) {
		rs := groups[m]
		ok := 0
		lats := make([]int, 0, len(rs))
		for _, r := range rs {
			if r.Success {
				ok++
			}
			lats = append(lats, r.LatencyMS)
		}
		sort.Ints(lats)
		stats := ModelStats{Model: m, Requests: len(rs)}
		if len(rs) > 0 {
			stats.SuccessPct = round(float64(ok)/float64(len(rs))*100, 1)
			stats.AvgMS = mean(lats)
		}
		out = append(out, stats)
	}
	return out
}

// CostBreakdownRow is one upstream's line in the financial breakdown.
type CostBreakdownRow struct {
	Upstream     string  `json:"upstream"`
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CostPerReq   float64 `json:"cost_per_req"`
}

// TierDistribution counts requests by route class.
type TierDistribution struct {
	Free     int `json:"free"`
	Internal int `json:"internal"`
	Premium  int `json:"premium"`
}

// Financial is the dashboard's spend-and-savings aggregation.
type Financial struct {
	TotalCostUSD   float64            `json:"total_cost_usd"`
	AvgCostPerReq  float64            `json:"avg_cost_per_req"`
	Breakdown      []CostBreakdownRow `json:"breakdown"`
	TierDist       TierDistribution   `json:"tier_dist"`
	SavingPct      float64            `json:"saving_pct"`
}

// GetFinancial implements the financial dashboard aggregation.
func (s *AnalyticsStore) GetFinancial() Financial {
	recs := s.snapshotRecords()
	if len(recs) == 0 {
		return Financial{Breakdown: []CostBreakdownRow{}}
	}

	groups := map[string][]RequestRecord{}
	for _, r := range recs {
		groups[r.Upstream] = append(groups[r.Upstream], r)
	}

	breakdown := make([]CostBreakdownRow, 0, len(groups))
	var total float64
	for _, up := range sortedKeys(groups) {
		rs := groups[up]
		inp, otp := 0, 0
		for _, r := range rs {
			inp += r.InputTokens
			otp += r.OutputTokens
		}
		c := cost(up, inp, otp)
		total += c
		row := CostBreakdownRow{Upstream: up, Requests: len(rs), InputTokens: inp, OutputTokens: otp, CostUSD: round(c, 6)}
		if len(rs) > 0 {
			row.CostPerReq = round(c/float64(len(rs)), 6)
		}
		breakdown = append(breakdown, row)
	}

	var freeN, intN, premN int
	for _, r := range recs {
		switch r.Route {
		case "free":
			freeN++
		case "internal":
			intN++
		case "premium":
			premN++
		}
	}

	return Financial{
		TotalCostUSD:  round(total, 4),
		AvgCostPerReq: round(total/float64(len(recs)), 6),
		Breakdown:     breakdown,
		TierDist:      TierDistribution{Free: freeN, Internal: intN, Premium: premN},
		SavingPct:     round(float64(freeN+intN)/float64(len(recs))*100, 1),
	}
}

// TimeseriesBucket is one fixed-width window of the request volume chart.
type TimeseriesBucket struct {
	T      time.Time `json:"t"`
	Reqs   int       `json:"reqs"`
	OK     int       `json:"ok"`
	Err    int       `json:"err"`
	AvgMS  int       `json:"avg_ms"`
	Tokens int       `json:"tokens"`
}

// Timeseries is the dashboard's bucketed volume chart data.
type Timeseries struct {
	Buckets   []TimeseriesBucket `json:"buckets"`
	BucketMin int                `json:"bucket_min"`
}

// GetTimeseries implements the timeseries dashboard aggregation over the
// trailing 24 hours, bucketed into bucketMin-minute windows.
func (s *AnalyticsStore) GetTimeseries(bucketMin int) Timeseries {
	if bucketMin <= 0 {
		bucketMin = 5
	}
	recs := s.snapshotRecords()
	out := Timeseries{Buckets: []TimeseriesBucket{}, BucketMin: bucketMin}
	if len(recs) == 0 {
		return out
	}

	sizeSec := int64(bucketMin * 60)
	cutoff := time.Now().Add(-24 * time.Hour)
	groups := map[int64][]RequestRecord{}
	for _, r := range recs {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		bucket := (r.Timestamp.Unix() / sizeSec) * sizeSec
		groups[bucket] = append(groups[bucket], r)
	}
	if len(groups) == 0 {
		return out
	}

	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, ts := range keys {
		rs := groups[ts]
		ok, tokens := 0, 0
		lats := make([]int, 0, len(rs))
		for _, r := range rs {
			if r.Success {
				ok++
			}
			lats = append(lats, r.LatencyMS)
			tokens += r.InputTokens + r.OutputTokens
		}
		out.Buckets = append(out.Buckets, TimeseriesBucket{
			T:      time.Unix(ts, 0).UTC(),
			Reqs:   len(rs),
			OK:     ok,
			Err:    len(rs) - ok,
			AvgMS:  mean(lats),
			Tokens: tokens,
		})
	}
	return out
}

// ErrorTypeCount is one row of the error-breakdown aggregation.
type ErrorTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GetErrors implements the error-breakdown dashboard aggregation, sorted
// by descending count.
func (s *AnalyticsStore) GetErrors() []ErrorTypeCount {
	recs := s.snapshotRecords()
	byType := map[string]int{}
	for _, r := range recs {
		if r.Success {
			continue
		}
		t := r.ErrorType
		if t == "" {
			t = "Unknown"
		}
		byType[t]++
	}
	out := make([]ErrorTypeCount, 0, len(byType))
	for t, c := range byType {
		out = append(out, ErrorTypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// PolicyCount is one row of the policy-usage aggregation.
type PolicyCount struct {
	Policy string `json:"policy"`
	Count  int    `json:"count"`
}

// GetPolicies implements the policy-usage dashboard aggregation, sorted by
// descending count.
func (s *AnalyticsStore) GetPolicies() []PolicyCount {
	recs := s.snapshotRecords()
	byPolicy := map[string]int{}
	for _, r := range recs {
		byPolicy[r.Policy]++
	}
	out := make([]PolicyCount, 0, len(byPolicy))
	for p, c := range byPolicy {
		out = append(out, PolicyCount{Policy: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// FallbackEdge counts one from->to fallback transition.
type FallbackEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// Fallbacks is the dashboard's fallback-chain aggregation.
type Fallbacks struct {
	Total         int            `json:"total"`
	FallbackCount int            `json:"fallback_count"`
	FallbackPct   float64        `json:"fallback_pct"`
	Chains        []FallbackEdge `json:"chains"`
}

// GetFallbacks implements the fallback-chain dashboard aggregation.
func (s *AnalyticsStore) GetFallbacks() Fallbacks {
	recs := s.snapshotRecords()
	out := Fallbacks{Total: len(recs), Chains: []FallbackEdge{}}
	if len(recs) == 0 {
		return out
	}

	chains := map[string]map[string]int{}
	fbCount := 0
	for _, r := range recs {
		if r.FallbackFrom == "" {
			continue
		}
		fbCount++
		from := r.FallbackFrom
		if _, ok := chains[from]; !ok {
			chains[from] = map[string]int{}
		}
		chains[from][r.Upstream]++
	}

	for _, from := range sortedKeys(chains) {
		for _, to := range sortedKeys(chains[from]) {
			out.Chains = append(out.Chains, FallbackEdge{From: from, To: to, Count: chains[from][to]})
		}
	}
	sort.Slice(out.Chains, func(i, j int) bool { return out.Chains[i].Count > out.Chains[j].Count })

	out.FallbackCount = fbCount
	out.FallbackPct = round(float64(fbCount)/float64(len(recs))*100, 1)
	return out
}

// RequestLogRow is one row of the raw request log view, newest first.
type RequestLogRow struct {
	TS           time.Time `json:"ts"`
	Alias        string    `json:"alias"`
	Upstream     string    `json:"upstream"`
	Route        string    `json:"route"`
	Model        string    `json:"model"`
	Policy       string    `json:"policy"`
	MS           int       `json:"ms"`
	OK           bool      `json:"ok"`
	Code         int       `json:"code"`
	Stream       bool      `json:"stream"`
	InputTokens  int       `json:"in_tok"`
	OutputTokens int       `json:"out_tok"`
	Err          string    `json:"err,omitempty"`
	FallbackFrom string    `json:"fb,omitempty"`
}

// GetRequestLog returns the most recent limit request records, newest
// first.
func (s *AnalyticsStore) GetRequestLog(limit int) []RequestLogRow {
	recs := s.snapshotRecords()
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	tail := recs[len(recs)-limit:]

	out := make([]RequestLogRow, 0, len(tail))
	for _, r := range tail {
		out = append(out, RequestLogRow{
			TS: r.Timestamp.UTC(), Alias: r.ModelAlias, Upstream: r.Upstream, Route: r.Route,
			Model: r.ActualModel, Policy: r.Policy, MS: r.LatencyMS, OK: r.Success, Code: r.StatusCode,
			Stream: r.IsStream, InputTokens: r.InputTokens, OutputTokens: r.OutputTokens,
			Err: r.ErrorType, FallbackFrom: r.FallbackFrom,
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SystemLogRow is one row of the system-log view.
type SystemLogRow struct {
	TS      time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// GetSystemLog returns the most recent limit log lines, optionally
// filtered by level (case-insensitive).
func (s *AnalyticsStore) GetSystemLog(limit int, level string) []SystemLogRow {
	logs := s.snapshotLogs()
	out := make([]SystemLogRow, 0, len(logs))
	for _, l := range logs {
		if level != "" && !equalFold(l.Level, level) {
			continue
		}
		out = append(out, SystemLogRow{TS: l.Timestamp, Level: l.Level, Message: l.Message, Extra: l.Extra})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 32
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
