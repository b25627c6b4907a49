// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// 指标名称
const (
	MetricBooksImported      = "books_imported_total"
	MetricBooksExported      = "books_exported_total"
	MetricChunksTranslated   = "chunks_translated_total"
	MetricCharactersSent     = "translation_characters_total"
	MetricTranslatorRequests = "translator_requests_total"
	MetricTranslatorErrors   = "translator_errors_total"
	MetricActiveTranslations = "active_translations"
	MetricTranslatorLatency  = "translator_response_time_ms"
	MetricAPIRequests        = "api_requests_total"
	MetricAPILatency         = "api_response_time_ms"
)

// MetricsCollector 收集应用运行指标
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram 记录数量、总和、最小值和最大值
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector 创建独立的指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector 返回全局指标收集器
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot 返回指定名称的计数槽，不存在时创建
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	value, exists := set[name]
	m.mu.RUnlock()
	if exists {
		return value
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if value, exists = set[name]; !exists {
		value = new(int64)
		set[name] = value
	}
	return value
}

// IncrementCounter 计数器加一
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter 计数器增加指定值
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue 读取计数器当前值
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	value, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(value)
}

// IncGauge 仪表值加一
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge 仪表值减一
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge 读取仪表当前值
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	value, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(value)
}

// RecordHistogram 记录一个观测值
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics 返回全部指标的快照
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, value := range m.counters {
		counters[name] = atomic.LoadInt64(value)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, value := range m.gauges {
		gauges[name] = atomic.LoadInt64(value)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		avg := int64(0)
		if histogram.count > 0 {
			avg = histogram.sum / histogram.count
		}
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
			"avg":   avg,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// AppMetrics 业务指标记录器
type AppMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewAppMetrics 创建业务指标记录器
func NewAppMetrics() *AppMetrics {
	return &AppMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger(),
	}
}

// Collector 返回底层指标收集器
func (am *AppMetrics) Collector() *MetricsCollector {
	return am.metrics
}

// RecordAPIRequest 记录一次 HTTP 请求
func (am *AppMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	am.metrics.IncrementCounter(MetricAPIRequests)
	am.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	am.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	am.metrics.RecordHistogram(MetricAPILatency, duration.Milliseconds())
}

// RecordTranslatorRequest 记录一次翻译服务调用
func (am *AppMetrics) RecordTranslatorRequest(provider string, texts, characters int, duration time.Duration, err error) {
	am.metrics.IncrementCounter(MetricTranslatorRequests)
	am.metrics.IncrementCounter("translator_requests_" + provider)
	am.metrics.RecordHistogram(MetricTranslatorLatency, duration.Milliseconds())

	if err != nil {
		am.metrics.IncrementCounter(MetricTranslatorErrors)
		am.logger.Warn("Translator request failed", map[string]interface{}{
			"provider": provider,
			"texts":    texts,
			"error":    err.Error(),
		})
		return
	}

	am.metrics.AddCounter(MetricChunksTranslated, int64(texts))
	am.metrics.AddCounter(MetricCharactersSent, int64(characters))
	am.logger.Debug("Translator request completed", map[string]interface{}{
		"provider":   provider,
		"texts":      texts,
		"characters": characters,
		"duration":   duration.Milliseconds(),
	})
}

// RecordImport 记录一次书籍导入
func (am *AppMetrics) RecordImport(bookID int64, chapters, chunks int) {
	am.metrics.IncrementCounter(MetricBooksImported)
	am.logger.Info("Book imported", map[string]interface{}{
		"book_id":  bookID,
		"chapters": chapters,
		"chunks":   chunks,
	})
}

// RecordExport 记录一次书籍导出
func (am *AppMetrics) RecordExport(bookID int64, size int64) {
	am.metrics.IncrementCounter(MetricBooksExported)
	am.logger.Info("Book exported", map[string]interface{}{
		"book_id": bookID,
		"bytes":   size,
	})
}

// TranslationStarted 后台翻译任务开始
func (am *AppMetrics) TranslationStarted() {
	am.metrics.IncGauge(MetricActiveTranslations)
}

// TranslationFinished 后台翻译任务结束
func (am *AppMetrics) TranslationFinished() {
	am.metrics.DecGauge(MetricActiveTranslations)
}

// StartMetricsReporting 定期把指标写入日志
func (am *AppMetrics) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				am.logger.Info("Periodic metrics report", map[string]interface{}{
					"metrics": am.metrics.GetMetrics(),
				})
			}
		}
	}()
}
