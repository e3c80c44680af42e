package versions

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/report-vault/internal/diff"
)

// ExportJSON serializes every version of documentID, oldest first
func (s *Store) ExportJSON(ctx context.Context, documentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.list(ctx, documentID)
	if err != nil {
		return "", err
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})

	data, err := encodeExport(documentID, versions, s.opts.Now())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeExport(documentID string, versions []ReportVersion, now time.Time) ([]byte, error) {
	if versions == nil {
		versions = []ReportVersion{}
	}
	exp := Export{
		ExportDate:   now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DocumentID:   documentID,
		VersionCount: len(versions),
		Versions:     versions,
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return data, nil
}

// importFile mirrors Export with pointers so missing fields can be told
// apart from zero values
type importFile struct {
	ExportDate   *string          `json:"export_date"`
	DocumentID   *string          `json:"document_id"`
	VersionCount *int             `json:"version_count"`
	Versions     []importedRecord `json:"versions"`
}

type importedRecord struct {
	ID                *string          `json:"id"`
	DocumentID        *string          `json:"document_id"`
	VersionNumber     *float64         `json:"version_number"`
	CreatedAt         *int64           `json:"created_at"`
	Content           *string          `json:"content"`
	ChangeDescription *string          `json:"change_description"`
	CreatedBy         *Author          `json:"created_by"`
	ForensicContext   *ForensicContext `json:"forensic_context"`
	IsAutoSave        *bool            `json:"is_auto_save"`
	DiffStats         *diff.Stats      `json:"diff_stats"`
}

// ImportJSON validates an export and merges its versions into the store. The
// import is all or nothing: any invalid record leaves the store untouched.
// Imported records get fresh ids; every other field is kept.
func (s *Store) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var file importFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, invalid("json", "%v", err)
	}

	if file.DocumentID == nil {
		return 0, invalid("document_id", "is required")
	}
	documentID := *file.DocumentID
	if err := validateDocumentID(documentID); err != nil {
		return 0, err
	}
	if file.Versions == nil {
		return 0, invalid("versions", "is required")
	}
	if file.VersionCount != nil && *file.VersionCount != len(file.Versions) {
		return 0, invalid("version_count", "is %d but %d versions are present", *file.VersionCount, len(file.Versions))
	}

	incoming := make([]ReportVersion, 0, len(file.Versions))
	numbers := make(map[int]bool, len(file.Versions))
	for i, rec := range file.Versions {
		v, err := s.importRecord(i, documentID, rec)
		if err != nil {
			return 0, err
		}
		if numbers[v.VersionNumber] {
			return 0, invalid(fmt.Sprintf("versions[%d].version_number", i), "duplicate version number %d", v.VersionNumber)
		}
		numbers[v.VersionNumber] = true
		incoming = append(incoming, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, raw, err := s.read(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if err := s.checkFresh(documentID, env); err != nil {
		return 0, err
	}
	for _, v := range env.Versions {
		if numbers[v.VersionNumber] {
			return 0, invalid("version_number", "version %d already exists for document %s", v.VersionNumber, documentID)
		}
	}
	if len(incoming) == 0 {
		return 0, nil
	}

	merged := append(append([]ReportVersion(nil), env.Versions...), incoming...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].VersionNumber < merged[j].VersionNumber
	})
	next := &envelope{
		Generation: env.Generation + 1,
		UpdatedAt:  s.opts.Now().UnixMilli(),
		Versions:   merged,
	}

	if _, err := s.commit(ctx, documentID, env, raw, next, "", false); err != nil {
		return 0, err
	}
	if len(env.Versions) == 0 && raw == nil {
		if err := s.addToIndex(ctx, documentID); err != nil {
			s.log.Error().Err(err).Str("document_id", documentID).Msg("failed to update document index")
		}
	}

	s.log.Info().
		Str("document_id", documentID).
		Int("imported", len(incoming)).
		Msg("versions imported")
	return len(incoming), nil
}

func (s *Store) importRecord(i int, documentID string, rec importedRecord) (ReportVersion, error) {
	field := func(name string) string {
		return fmt.Sprintf("versions[%d].%s", i, name)
	}

	if rec.VersionNumber == nil {
		return ReportVersion{}, invalid(field("version_number"), "is required")
	}
	n := *rec.VersionNumber
	if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
		return ReportVersion{}, invalid(field("version_number"), "must be a positive integer, got %v", n)
	}
	if rec.Content == nil {
		return ReportVersion{}, invalid(field("content"), "is required")
	}
	if rec.CreatedAt == nil {
		return ReportVersion{}, invalid(field("created_at"), "is required")
	}
	if *rec.CreatedAt < 0 {
		return ReportVersion{}, invalid(field("created_at"), "must not be negative")
	}
	if rec.IsAutoSave == nil {
		return ReportVersion{}, invalid(field("is_auto_save"), "is required")
	}
	if rec.DocumentID != nil && *rec.DocumentID != documentID {
		return ReportVersion{}, invalid(field("document_id"), "%q does not match export document %q", *rec.DocumentID, documentID)
	}

	v := ReportVersion{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		VersionNumber: int(n),
		CreatedAt:     *rec.CreatedAt,
		IsAutoSave:    *rec.IsAutoSave,
		DiffStats:     rec.DiffStats,
	}
	if rec.CreatedBy != nil {
		v.CreatedBy = *rec.CreatedBy
	}
	var note string
	if rec.ChangeDescription != nil {
		note = *rec.ChangeDescription
	}
	desc, err := normalizeDescription(note, v.IsAutoSave)
	if err != nil {
		return ReportVersion{}, err
	}
	v.ChangeDescription = desc
	if rec.ForensicContext != nil {
		fc, err := normalizeForensicContext(*rec.ForensicContext)
		if err != nil {
			return ReportVersion{}, err
		}
		v.ForensicContext = &fc
	}

	clean, err := s.sanitizeForWrite(documentID, *rec.Content)
	if err != nil {
		return ReportVersion{}, err
	}
	v.Content = clean

	return v, nil
}
