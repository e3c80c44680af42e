package versions

import (
	"github.com/report-vault/internal/diff"
)

// ReportVersion is one immutable snapshot of a document
type ReportVersion struct {
	ID                string           `json:"id"`
	DocumentID        string           `json:"document_id"`
	VersionNumber     int              `json:"version_number"`
	CreatedAt         int64            `json:"created_at"` // milliseconds since epoch
	Content           string           `json:"content"`
	ChangeDescription string           `json:"change_description"`
	CreatedBy         Author           `json:"created_by"`
	ForensicContext   *ForensicContext `json:"forensic_context,omitempty"`
	IsAutoSave        bool             `json:"is_auto_save"`
	DiffStats         *diff.Stats      `json:"diff_stats"`
}

// Author identifies who created a version. The store copies it verbatim.
type Author struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Priority of an investigation
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ForensicContext carries case metadata attached to a version
type ForensicContext struct {
	CaseID             string   `json:"case_id,omitempty"`
	IncidentType       string   `json:"incident_type,omitempty"`
	EvidenceTags       []string `json:"evidence_tags,omitempty"`
	InvestigationPhase string   `json:"investigation_phase,omitempty"`
	Priority           Priority `json:"priority,omitempty"`
	AssignedTo         string   `json:"assigned_to,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// Metadata is the caller-supplied part of a new version
type Metadata struct {
	ChangeDescription string
	CreatedBy         Author
	ForensicContext   *ForensicContext
	IsAutoSave        bool
}

// AppendOptions adjusts a single append
type AppendOptions struct {
	// Force skips the concurrent modification check
	Force bool
}

// StorageUsage is derived on demand from the backend
type StorageUsage struct {
	UsedBytes     int64   `json:"used_bytes"`
	CapacityBytes int64   `json:"capacity_bytes"`
	Percentage    float64 `json:"percentage"`
}

// LoadResult is a version as returned to a consumer after the read-time
// sanitization pass. RemovedCount > 0 means stored content was unsafe.
type LoadResult struct {
	Version      ReportVersion `json:"version"`
	RemovedCount int           `json:"removed_count"`
}

// Export is the portable JSON form of a document's history
type Export struct {
	ExportDate   string          `json:"export_date"`
	DocumentID   string          `json:"document_id"`
	VersionCount int             `json:"version_count"`
	Versions     []ReportVersion `json:"versions"`
}

// envelope is what is persisted under a document's key. Keeping every
// version under one key makes append and eviction a single atomic write.
type envelope struct {
	Generation uint64          `json:"generation"`
	UpdatedAt  int64           `json:"updated_at"`
	Versions   []ReportVersion `json:"versions"` // ascending version_number
}

func (e *envelope) head() *ReportVersion {
	if len(e.Versions) == 0 {
		return nil
	}
	return &e.Versions[len(e.Versions)-1]
}

func (e *envelope) find(versionID string) int {
	for i := range e.Versions {
		if e.Versions[i].ID == versionID {
			return i
		}
	}
	return -1
}
