// 本文件用于 Prometheus 指标聚合与导出 将运行时指标统一收口便于监控接入

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector 聚合运行期指标，并以 Prometheus 文本格式输出。
type Collector struct {
	documentsTotal atomic.Int64
	queuePending   atomic.Int64

	ingestSuccessTotal atomic.Uint64
	ingestFailureTotal atomic.Uint64

	searchTotal    atomic.Uint64
	searchHitTotal atomic.Uint64

	assessTotal         atomic.Uint64
	escalationTotal     atomic.Uint64
	enqueueTotal        atomic.Uint64
	enqueueFailureTotal atomic.Uint64

	mu                    sync.RWMutex
	ingestFailuresByCause map[string]uint64
	ingestByLanguage      map[string]uint64
	ingestDurationSec     *histogram
	searchDurationSec     *histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64 // 累计桶计数
	count   uint64
	sum     float64
}

var (
	globalCollector = NewCollector()
)

// Global 返回进程级全局指标收集器。
func Global() *Collector {
	return globalCollector
}

// NewCollector 创建指标收集器。
func NewCollector() *Collector {
	return &Collector{
		ingestFailuresByCause: make(map[string]uint64),
		ingestByLanguage:      make(map[string]uint64),
		ingestDurationSec:     newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}),
		searchDurationSec:     newHistogram([]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}),
	}
}

func newHistogram(buckets []float64) *histogram {
	clean := make([]float64, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket <= 0 {
			continue
		}
		clean = append(clean, bucket)
	}
	sort.Float64s(clean)
	return &histogram{
		buckets: clean,
		counts:  make([]uint64, len(clean)),
	}
}

func (h *histogram) observe(v float64) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		if v <= bound {
			h.counts[idx]++
		}
	}
	h.count++
	h.sum += v
}

func (h *histogram) writePrometheus(builder *strings.Builder, metric string, labels map[string]string) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		bucketLabels := mergeLabels(labels, map[string]string{
			"le": trimFloat(bound),
		})
		builder.WriteString(metric)
		builder.WriteString("_bucket")
		writeLabels(builder, bucketLabels)
		builder.WriteByte(' ')
		builder.WriteString(strconv.FormatUint(h.counts[idx], 10))
		builder.WriteByte('\n')
	}
	infLabels := mergeLabels(labels, map[string]string{
		"le": "+Inf",
	})
	builder.WriteString(metric)
	builder.WriteString("_bucket")
	writeLabels(builder, infLabels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_sum")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(h.sum))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_count")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')
}

// SetDocumentsTotal 刷新知识库文档总数。
func (c *Collector) SetDocumentsTotal(total int) {
	if c == nil {
		return
	}
	c.documentsTotal.Store(int64(total))
}

// SetQueuePending 刷新转接队列待处理长度。
func (c *Collector) SetQueuePending(pending int) {
	if c == nil {
		return
	}
	c.queuePending.Store(int64(pending))
}

// ObserveIngestSuccess 记录文档入库成功 附带语言与耗时。
func (c *Collector) ObserveIngestSuccess(language string, latency time.Duration) {
	if c == nil {
		return
	}
	c.ingestSuccessTotal.Add(1)
	label := normalizeMetricLabel(language)
	c.mu.Lock()
	c.ingestByLanguage[label]++
	c.ingestDurationSec.observe(latency.Seconds())
	c.mu.Unlock()
}

// ObserveIngestFailure 记录文档入库失败原因。
func (c *Collector) ObserveIngestFailure(cause string) {
	if c == nil {
		return
	}
	c.ingestFailureTotal.Add(1)
	key := normalizeMetricLabel(cause)
	c.mu.Lock()
	c.ingestFailuresByCause[key]++
	c.mu.Unlock()
}

// ObserveSearch 记录一次检索调用 含命中与耗时。
func (c *Collector) ObserveSearch(hitCount int, latency time.Duration) {
	if c == nil {
		return
	}
	c.searchTotal.Add(1)
	if hitCount > 0 {
		c.searchHitTotal.Add(1)
	}
	c.mu.Lock()
	c.searchDurationSec.observe(latency.Seconds())
	c.mu.Unlock()
}

// ObserveAssessment 记录一次升级分析及其结论。
func (c *Collector) ObserveAssessment(escalated bool) {
	if c == nil {
		return
	}
	c.assessTotal.Add(1)
	if escalated {
		c.escalationTotal.Add(1)
	}
}

// IncEnqueue 记录一次转接入队成功。
func (c *Collector) IncEnqueue() {
	if c == nil {
		return
	}
	c.enqueueTotal.Add(1)
}

// IncEnqueueFailure 记录一次转接入队失败。
func (c *Collector) IncEnqueueFailure() {
	if c == nil {
		return
	}
	c.enqueueFailureTotal.Add(1)
}

// RenderPrometheus 以 text exposition 格式导出指标。
func (c *Collector) RenderPrometheus() string {
	if c == nil {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(4096)

	writeMetricHeader(&builder, "casst_documents_total", "gauge", "Current number of documents in the knowledge store.")
	writeGaugeInt(&builder, "casst_documents_total", c.documentsTotal.Load(), nil)

	writeMetricHeader(&builder, "casst_handoff_queue_pending", "gauge", "Current pending entries in the handoff queue.")
	writeGaugeInt(&builder, "casst_handoff_queue_pending", c.queuePending.Load(), nil)

	writeMetricHeader(&builder, "casst_ingest_success_total", "counter", "Total successful document ingestions.")
	writeCounter(&builder, "casst_ingest_success_total", c.ingestSuccessTotal.Load(), nil)

	writeMetricHeader(&builder, "casst_ingest_failure_total", "counter", "Total failed document ingestions.")
	writeCounter(&builder, "casst_ingest_failure_total", c.ingestFailureTotal.Load(), nil)

	ingestFailureByCause := make(map[string]uint64)
	ingestByLanguage := make(map[string]uint64)
	var ingestDurationCopy histogram
	var searchDurationCopy histogram
	c.mu.RLock()
	for cause, count := range c.ingestFailuresByCause {
		ingestFailureByCause[cause] = count
	}
	for language, count := range c.ingestByLanguage {
		ingestByLanguage[language] = count
	}
	ingestDurationCopy = cloneHistogram(c.ingestDurationSec)
	searchDurationCopy = cloneHistogram(c.searchDurationSec)
	c.mu.RUnlock()

	writeMetricHeader(&builder, "casst_ingest_failure_cause_total", "counter", "Ingestion failures grouped by cause.")
	causes := sortedStringKeysFromUintMap(ingestFailureByCause)
	for _, cause := range causes {
		writeCounter(&builder, "casst_ingest_failure_cause_total", ingestFailureByCause[cause], map[string]string{
			"cause": cause,
		})
	}

	writeMetricHeader(&builder, "casst_ingest_language_total", "counter", "Successful ingestions grouped by detected language.")
	languages := sortedStringKeysFromUintMap(ingestByLanguage)
	for _, language := range languages {
		writeCounter(&builder, "casst_ingest_language_total", ingestByLanguage[language], map[string]string{
			"language": language,
		})
	}

	writeMetricHeader(&builder, "casst_ingest_duration_seconds", "histogram", "Document ingestion latency distribution in seconds.")
	ingestDurationCopy.writePrometheus(&builder, "casst_ingest_duration_seconds", nil)

	searchTotal := c.searchTotal.Load()
	searchHitTotal := c.searchHitTotal.Load()

	writeMetricHeader(&builder, "casst_search_total", "counter", "Total knowledge search requests.")
	writeCounter(&builder, "casst_search_total", searchTotal, nil)

	writeMetricHeader(&builder, "casst_search_hit_total", "counter", "Total knowledge searches with at least one hit.")
	writeCounter(&builder, "casst_search_hit_total", searchHitTotal, nil)

	writeMetricHeader(&builder, "casst_search_hit_ratio", "gauge", "Knowledge search hit ratio.")
	writeGaugeFloat(&builder, "casst_search_hit_ratio", safeRatio(searchHitTotal, searchTotal), nil)

	writeMetricHeader(&builder, "casst_search_duration_seconds", "histogram", "Knowledge search latency distribution in seconds.")
	searchDurationCopy.writePrometheus(&builder, "casst_search_duration_seconds", nil)

	writeMetricHeader(&builder, "casst_assess_total", "counter", "Total escalation assessments.")
	writeCounter(&builder, "casst_assess_total", c.assessTotal.Load(), nil)

	writeMetricHeader(&builder, "casst_escalation_total", "counter", "Total assessments that decided to escalate.")
	writeCounter(&builder, "casst_escalation_total", c.escalationTotal.Load(), nil)

	writeMetricHeader(&builder, "casst_handoff_enqueue_total", "counter", "Total successful handoff enqueues.")
	writeCounter(&builder, "casst_handoff_enqueue_total", c.enqueueTotal.Load(), nil)

	writeMetricHeader(&builder, "casst_handoff_enqueue_failure_total", "counter", "Total failed handoff enqueues.")
	writeCounter(&builder, "casst_handoff_enqueue_failure_total", c.enqueueFailureTotal.Load(), nil)

	return builder.String()
}

func cloneHistogram(h *histogram) histogram {
	if h == nil {
		return histogram{}
	}
	copyHist := histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		count:   h.count,
		sum:     h.sum,
	}
	return copyHist
}

func writeMetricHeader(builder *strings.Builder, metric, metricType, help string) {
	builder.WriteString("# HELP ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(help)
	builder.WriteByte('\n')
	builder.WriteString("# TYPE ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(metricType)
	builder.WriteByte('\n')
}

func writeCounter(builder *strings.Builder, metric string, value uint64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeInt(builder *strings.Builder, metric string, value int64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatInt(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeFloat(builder *strings.Builder, metric string, value float64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(value))
	builder.WriteByte('\n')
}

func writeLabels(builder *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder.WriteByte('{')
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteString("=\"")
		builder.WriteString(escapeLabelValue(labels[key]))
		builder.WriteByte('"')
	}
	builder.WriteByte('}')
}

func mergeLabels(base, ext map[string]string) map[string]string {
	if len(base) == 0 && len(ext) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(ext))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range ext {
		merged[key] = value
	}
	return merged
}

func normalizeMetricLabel(value string) string {
	clean := strings.TrimSpace(strings.ToLower(value))
	if clean == "" {
		return "unknown"
	}
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	clean = strings.ReplaceAll(clean, "\t", " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return clean
}

func escapeLabelValue(value string) string {
	replacer := strings.NewReplacer(
		`\\`, `\\\\`,
		`"`, `\"`,
		"\n", `\n`,
	)
	return replacer.Replace(value)
}

func sortedStringKeysFromUintMap(items map[string]uint64) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func safeRatio(hit, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// ResetForTest 仅用于测试，避免跨用例污染。
func (c *Collector) ResetForTest() {
	if c == nil {
		return
	}
	c.documentsTotal.Store(0)
	c.queuePending.Store(0)
	c.ingestSuccessTotal.Store(0)
	c.ingestFailureTotal.Store(0)
	c.searchTotal.Store(0)
	c.searchHitTotal.Store(0)
	c.assessTotal.Store(0)
	c.escalationTotal.Store(0)
	c.enqueueTotal.Store(0)
	c.enqueueFailureTotal.Store(0)

	c.mu.Lock()
	c.ingestFailuresByCause = make(map[string]uint64)
	c.ingestByLanguage = make(map[string]uint64)
	c.ingestDurationSec = newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
	c.searchDurationSec = newHistogram([]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1})
	c.mu.Unlock()
}

// MustGlobalPrometheus 返回全局指标文本，便于在 handler 中直接输出。
func MustGlobalPrometheus() string {
	return Global().RenderPrometheus()
}

// EnsureCollectorForTest 仅用于测试替换全局实例。
func EnsureCollectorForTest(collector *Collector) {
	if collector == nil {
		return
	}
	globalCollector = collector
}

// NewTestCollector 提供带默认配置的测试 Collector。
func NewTestCollector() *Collector {
	collector := NewCollector()
	collector.ResetForTest()
	return collector
}

// SnapshotString 仅用于本地调试。
func (c *Collector) SnapshotString() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf(
		"docs=%d pending=%d ingest=%d search=%d assess=%d enqueue=%d",
		c.documentsTotal.Load(),
		c.queuePending.Load(),
		c.ingestSuccessTotal.Load(),
		c.searchTotal.Load(),
		c.assessTotal.Load(),
		c.enqueueTotal.Load(),
	)
}
