// Package metrics provides Prometheus metrics for report-vault
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	AppendsTotal           *prometheus.CounterVec
	SkippedSavesTotal      prometheus.Counter
	SanitizerRemovalsTotal *prometheus.CounterVec
	EvictedVersionsTotal   prometheus.Counter
	QuotaRefusalsTotal     prometheus.Counter
	CorruptionsTotal       prometheus.Counter
	ConflictsTotal         prometheus.Counter
	AutosaveFailuresTotal  prometheus.Counter
	StorageUsagePercent    prometheus.Gauge
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportvault_appends_total",
				Help: "Total number of versions appended",
			},
			[]string{"kind"},
		),
		SkippedSavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_skipped_saves_total",
			Help: "Saves skipped because content matched the last saved version",
		}),
		SanitizerRemovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportvault_sanitizer_removals_total",
				Help: "Elements and attributes removed by the sanitizer",
			},
			[]string{"phase"},
		),
		EvictedVersionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_evicted_versions_total",
			Help: "Auto-save versions removed by eviction",
		}),
		QuotaRefusalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_quota_refusals_total",
			Help: "Appends refused because the storage quota would be exceeded",
		}),
		CorruptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_corrupted_records_total",
			Help: "Stored documents that failed to deserialize",
		}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_concurrent_modifications_total",
			Help: "Writes rejected because another writer changed the document",
		}),
		AutosaveFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportvault_autosave_failures_total",
			Help: "Auto-save attempts that failed",
		}),
		StorageUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportvault_storage_usage_percent",
			Help: "Storage used as a percentage of the configured capacity",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AppendsTotal,
			m.SkippedSavesTotal,
			m.SanitizerRemovalsTotal,
			m.EvictedVersionsTotal,
			m.QuotaRefusalsTotal,
			m.CorruptionsTotal,
			m.ConflictsTotal,
			m.AutosaveFailuresTotal,
			m.StorageUsagePercent,
		)
	}

	return m
}

// RecordAppend counts an appended version
func (m *Metrics) RecordAppend(autoSave bool) {
	if m == nil {
		return
	}
	kind := "manual"
	if autoSave {
		kind = "auto"
	}
	m.AppendsTotal.WithLabelValues(kind).Inc()
}

// RecordSkippedSave counts a no-op save
func (m *Metrics) RecordSkippedSave() {
	if m == nil {
		return
	}
	m.SkippedSavesTotal.Inc()
}

// RecordRemovals counts sanitizer removals for a phase ("write" or "read")
func (m *Metrics) RecordRemovals(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SanitizerRemovalsTotal.WithLabelValues(phase).Add(float64(n))
}

// RecordEviction counts evicted versions
func (m *Metrics) RecordEviction(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EvictedVersionsTotal.Add(float64(n))
}

// RecordQuotaRefusal counts a refused append
func (m *Metrics) RecordQuotaRefusal() {
	if m == nil {
		return
	}
	m.QuotaRefusalsTotal.Inc()
}

// RecordCorruption counts a document that failed to decode
func (m *Metrics) RecordCorruption() {
	if m == nil {
		return
	}
	m.CorruptionsTotal.Inc()
}

// RecordConflict counts a concurrent modification
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.ConflictsTotal.Inc()
}

// RecordAutosaveFailure counts a failed auto-save
func (m *Metrics) RecordAutosaveFailure() {
	if m == nil {
		return
	}
	m.AutosaveFailuresTotal.Inc()
}

// SetUsage updates the storage usage gauge
func (m *Metrics) SetUsage(percent float64) {
	if m == nil {
		return
	}
	m.StorageUsagePercent.Set(percent)
}
