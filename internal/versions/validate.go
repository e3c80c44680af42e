package versions

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxDocumentIDLength   = 128
	maxDescriptionLength  = 500
	maxEvidenceTags       = 10
	maxEvidenceTagLength  = 30
	maxNotesLength        = 1000
	defaultAutoSaveNote   = "Auto-save"
	defaultManualSaveNote = "Manual save"
)

var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,49}$`)

func validateDocumentID(documentID string) error {
	switch {
	case documentID == "":
		return invalid("document_id", "must not be empty")
	case utf8.RuneCountInString(documentID) > maxDocumentIDLength:
		return invalid("document_id", "must be at most %d characters", maxDocumentIDLength)
	case strings.ContainsAny(documentID, ":*"):
		return invalid("document_id", "must not contain ':' or '*'")
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return invalid("change_description", "must be at most %d characters", maxDescriptionLength)
	}
	return nil
}

// normalizeDescription trims desc and falls back to the default note for
// the kind of save
func normalizeDescription(desc string, isAutoSave bool) (string, error) {
	desc = strings.TrimSpace(desc)
	if err := validateDescription(desc); err != nil {
		return "", err
	}
	if desc == "" {
		if isAutoSave {
			return defaultAutoSaveNote, nil
		}
		return defaultManualSaveNote, nil
	}
	return desc, nil
}

// normalizeMetadata validates meta and fills defaults. The forensic context is
// copied so later changes by the caller cannot reach a stored version.
func normalizeMetadata(meta Metadata) (Metadata, error) {
	desc, err := normalizeDescription(meta.ChangeDescription, meta.IsAutoSave)
	if err != nil {
		return meta, err
	}
	meta.ChangeDescription = desc

	if meta.ForensicContext != nil {
		fc, err := normalizeForensicContext(*meta.ForensicContext)
		if err != nil {
			return meta, err
		}
		meta.ForensicContext = &fc
	}

	return meta, nil
}

func normalizeForensicContext(fc ForensicContext) (ForensicContext, error) {
	if fc.CaseID != "" && !caseIDPattern.MatchString(fc.CaseID) {
		return fc, invalid("forensic_context.case_id", "%q must be 3-50 letters, digits, '-' or '_'", fc.CaseID)
	}

	switch fc.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return fc, invalid("forensic_context.priority", "%q is not one of low, medium, high, critical", fc.Priority)
	}

	if utf8.RuneCountInString(fc.Notes) > maxNotesLength {
		return fc, invalid("forensic_context.notes", "must be at most %d characters", maxNotesLength)
	}

	if len(fc.EvidenceTags) > 0 {
		seen := make(map[string]bool, len(fc.EvidenceTags))
		tags := make([]string, 0, len(fc.EvidenceTags))
		for _, tag := range fc.EvidenceTags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				return fc, invalid("forensic_context.evidence_tags", "tags must not be empty")
			}
			if utf8.RuneCountInString(tag) > maxEvidenceTagLength {
				return fc, invalid("forensic_context.evidence_tags", "tag %q exceeds %d characters", tag, maxEvidenceTagLength)
			}
			if seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
		if len(tags) > maxEvidenceTags {
			return fc, invalid("forensic_context.evidence_tags", "at most %d tags allowed, got %d", maxEvidenceTags, len(tags))
		}
		fc.EvidenceTags = tags
	}

	return fc, nil
}
