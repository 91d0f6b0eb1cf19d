package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// 指标名称
const (
	MetricPredictions       = "predictions_total"
	MetricPredictionErrors  = "prediction_errors_total"
	MetricCacheHits         = "prediction_cache_hits_total"
	MetricPredictLatency    = "predict_latency_ms"
	MetricHTTPRequests      = "http_requests_total"
	MetricSessionsConnected = "sessions_connected_total"
)

// maxSamples 每个观测指标保留的最近样本数
const maxSamples = 1000

// Summary 指标摘要
type Summary struct {
	Count  int     `json:"count"`
	Latest float64 `json:"latest"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
}

// SystemStats 运行时指标
type SystemStats struct {
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// Snapshot 指标快照
type Snapshot struct {
	Uptime    string             `json:"uptime"`
	Counters  map[string]float64 `json:"counters"`
	Summaries map[string]Summary `json:"summaries"`
	System    SystemStats        `json:"system"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]float64
	samples  map[string][]float64

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]float64),
		samples:   make(map[string][]float64),
		startTime: time.Now(),
	}
}

// Inc 计数器加一
func (mc *MetricsCollector) Inc(name string) {
	mc.Add(name, 1)
}

func (mc *MetricsCollector) Add(name string, delta float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name] += delta
}

func (mc *MetricsCollector) Counter(name string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

// Observe 记录一个观测值
func (mc *MetricsCollector) Observe(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	samples := append(mc.samples[name], value)
	// 限制历史大小
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	mc.samples[name] = samples
}

// ObserveDuration 以毫秒记录耗时
func (mc *MetricsCollector) ObserveDuration(name string, d time.Duration) {
	mc.Observe(name, float64(d.Microseconds())/1000)
}

// GetSummary 获取指标摘要
func (mc *MetricsCollector) GetSummary(name string) (Summary, bool) {
	mc.mu.RLock()
	samples := append([]float64(nil), mc.samples[name]...)
	mc.mu.RUnlock()

	if len(samples) == 0 {
		return Summary{}, false
	}
	return summarize(samples), true
}

// Snapshot 获取所有指标
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	counters := make(map[string]float64, len(mc.counters))
	for name, v := range mc.counters {
		counters[name] = v
	}
	names := make([]string, 0, len(mc.samples))
	for name := range mc.samples {
		names = append(names, name)
	}
	mc.mu.RUnlock()

	sort.Strings(names)
	summaries := make(map[string]Summary, len(names))
	for _, name := range names {
		if s, ok := mc.GetSummary(name); ok {
			summaries[name] = s
		}
	}

	return Snapshot{
		Uptime:    time.Since(mc.startTime).Round(time.Second).String(),
		Counters:  counters,
		Summaries: summaries,
		System:    systemStats(),
	}
}

func summarize(samples []float64) Summary {
	latest := samples[len(samples)-1]
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	return Summary{
		Count:  len(samples),
		Latest: latest,
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Mean:   stat.Mean(sorted, nil),
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

// systemStats 收集系统指标
func systemStats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		NumGC:       m.NumGC,
	}
}
