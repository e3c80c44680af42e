// Package versions persists ordered, immutable report versions per document
// on top of a kv.Backend. Every write passes through the sanitization gate,
// every read passes through it again, and a configurable byte quota bounds
// the namespace with oldest-auto-save-first eviction.
package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/report-vault/internal/diff"
	"github.com/report-vault/internal/kv"
	"github.com/report-vault/internal/metrics"
	"github.com/report-vault/internal/sanitize"
)

const (
	DefaultNamespace     = "report-vault"
	DefaultCapacityBytes = 5 << 20
	DefaultWarnPercent   = 90.0
	DefaultKeepAutoSaves = 5
)

// Archiver receives a document export before auto-saves are evicted from it
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// Options configures a Store
type Options struct {
	Namespace     string
	CapacityBytes int64
	WarnPercent   float64
	// AutoEvict evicts old auto-saves on append once usage reaches WarnPercent
	AutoEvict     bool
	KeepAutoSaves int
	// SkipUnchanged turns an append whose content equals the head into a no-op
	SkipUnchanged bool

	Gate     *sanitize.Gate
	Diff     *diff.Engine
	Archiver Archiver
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Namespace:     DefaultNamespace,
		CapacityBytes: DefaultCapacityBytes,
		WarnPercent:   DefaultWarnPercent,
		AutoEvict:     true,
		KeepAutoSaves: DefaultKeepAutoSaves,
		SkipUnchanged: true,
		Logger:        zerolog.Nop(),
	}
}

// Store is the version store. It is safe for concurrent use; operations are
// serialized so eviction is never observed half done by an append.
type Store struct {
	mu      sync.Mutex
	backend kv.Backend
	opts    Options
	log     zerolog.Logger

	// generation of each document as last observed by this store
	seen map[string]uint64
}

// New creates a store over backend
func New(backend kv.Backend, opts Options) *Store {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.CapacityBytes <= 0 {
		opts.CapacityBytes = DefaultCapacityBytes
	}
	if opts.WarnPercent <= 0 {
		opts.WarnPercent = DefaultWarnPercent
	}
	if opts.KeepAutoSaves < 0 {
		opts.KeepAutoSaves = 0
	}
	if opts.Gate == nil {
		opts.Gate = sanitize.New(nil)
	}
	if opts.Diff == nil {
		opts.Diff = diff.NewEngine()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With().Str("namespace", opts.Namespace).Logger(),
		seen:    make(map[string]uint64),
	}
}

// Namespace returns the key prefix this store owns
func (s *Store) Namespace() string {
	return s.opts.Namespace
}

// SetQuota replaces capacity and warning threshold, e.g. after a config reload
func (s *Store) SetQuota(capacityBytes int64, warnPercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if capacityBytes > 0 {
		s.opts.CapacityBytes = capacityBytes
	}
	if warnPercent > 0 {
		s.opts.WarnPercent = warnPercent
	}
}

// WarnPercent is the usage percentage at which eviction starts
func (s *Store) WarnPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.opts.WarnPercent
}

func (s *Store) documentKey(documentID string) string {
	return s.opts.Namespace + ":versions:" + documentID
}

func (s *Store) indexKey() string {
	return s.opts.Namespace + ":documents"
}

func (s *Store) quarantineKey(documentID string, at time.Time) string {
	return s.opts.Namespace + ":corrupt:" + documentID + ":" + strconv.FormatInt(at.UnixMilli(), 10)
}

// Append sanitizes content and stores it as the next version of documentID
func (s *Store) Append(ctx context.Context, documentID, content string, meta Metadata) (*ReportVersion, error) {
	return s.AppendWithOptions(ctx, documentID, content, meta, AppendOptions{})
}

// AppendWithOptions is Append with per-call options
func (s *Store) AppendWithOptions(ctx context.Context, documentID, content string, meta Metadata, opts AppendOptions) (*ReportVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(ctx, documentID, content, meta, opts)
}

func (s *Store) append(ctx context.Context, documentID, content string, meta Metadata, opts AppendOptions) (*ReportVersion, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	meta, err := normalizeMetadata(meta)
	if err != nil {
		return nil, err
	}

	clean, err := s.sanitizeForWrite(documentID, content)
	if err != nil {
		return nil, err
	}

	env, raw, err := s.read(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !opts.Force {
		if err := s.checkFresh(documentID, env); err != nil {
			return nil, err
		}
	}

	head := env.head()
	if s.opts.SkipUnchanged && head != nil && head.Content == clean {
		s.opts.Metrics.RecordSkippedSave()
		s.seen[documentID] = env.Generation
		s.log.Debug().
			Str("document_id", documentID).
			Int("version", head.VersionNumber).
			Msg("content unchanged, skipping save")
		v := *head
		return &v, nil
	}

	now := s.opts.Now().UnixMilli()
	v := ReportVersion{
		ID:                uuid.NewString(),
		DocumentID:        documentID,
		VersionNumber:     nextNumber(env),
		CreatedAt:         now,
		Content:           clean,
		ChangeDescription: meta.ChangeDescription,
		CreatedBy:         meta.CreatedBy,
		ForensicContext:   meta.ForensicContext,
		IsAutoSave:        meta.IsAutoSave,
	}
	if head != nil {
		if head.CreatedAt > v.CreatedAt {
			v.CreatedAt = head.CreatedAt
		}
		stats := s.opts.Diff.Diff(head.Content, clean).Stats()
		v.DiffStats = &stats
	}

	next := &envelope{
		Generation: env.Generation + 1,
		UpdatedAt:  now,
		Versions:   append(append([]ReportVersion(nil), env.Versions...), v),
	}

	evicted, err := s.commit(ctx, documentID, env, raw, next, v.ID, true)
	if err != nil {
		return nil, err
	}

	if len(env.Versions) == 0 && raw == nil {
		if err := s.addToIndex(ctx, documentID); err != nil {
			// the version itself is durable; only listing is affected
			s.log.Error().Err(err).Str("document_id", documentID).Msg("failed to update document index")
		}
	}

	s.opts.Metrics.RecordAppend(v.IsAutoSave)
	s.log.Debug().
		Str("document_id", documentID).
		Str("version_id", v.ID).
		Int("version", v.VersionNumber).
		Bool("auto_save", v.IsAutoSave).
		Int("evicted", evicted).
		Msg("version appended")

	return &v, nil
}

// commit enforces the quota on next, evicting auto-saves when evict is set
// and the store allows it, and writes it. protectID is never evicted.
func (s *Store) commit(ctx context.Context, documentID string, prev *envelope, prevRaw []byte, next *envelope, protectID string, evict bool) (int, error) {
	key := s.documentKey(documentID)

	data, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("failed to encode versions: %w", err)
	}

	used, err := s.backend.EstimateUsage(ctx, s.opts.Namespace+":")
	if err != nil {
		return 0, fmt.Errorf("failed to estimate storage usage: %w", err)
	}
	projected := used - entrySize(key, prevRaw) + int64(len(key)+len(data))

	evicted := 0
	if evict && s.opts.AutoEvict && s.percent(projected) >= s.opts.WarnPercent {
		victims := evictionVictims(next.Versions, s.opts.KeepAutoSaves, protectID)
		if len(victims) > 0 {
			if err := s.archive(ctx, documentID, prev); err != nil {
				return 0, err
			}
			next.Versions = without(next.Versions, victims)
			evicted = len(victims)

			data, err = json.Marshal(next)
			if err != nil {
				return 0, fmt.Errorf("failed to encode versions: %w", err)
			}
			projected = used - entrySize(key, prevRaw) + int64(len(key)+len(data))

			s.log.Info().
				Str("document_id", documentID).
				Int("evicted", evicted).
				Int("keep", s.opts.KeepAutoSaves).
				Float64("projected_percent", s.percent(projected)).
				Msg("evicting old auto-saves")
		}
	}

	if projected > s.opts.CapacityBytes {
		s.opts.Metrics.RecordQuotaRefusal()
		s.log.Warn().
			Str("document_id", documentID).
			Int64("used", used).
			Int64("projected", projected).
			Int64("capacity", s.opts.CapacityBytes).
			Msg("storage quota exceeded")
		return 0, &QuotaError{UsedBytes: used, ProjectedBytes: projected, CapacityBytes: s.opts.CapacityBytes}
	}

	if err := s.backend.Set(ctx, key, data); err != nil {
		return 0, fmt.Errorf("failed to write versions for %s: %w", documentID, err)
	}
	s.seen[documentID] = next.Generation
	s.opts.Metrics.RecordEviction(evicted)
	s.opts.Metrics.SetUsage(s.percent(projected))

	return evicted, nil
}

// Load returns a single version after re-sanitizing its content
func (s *Store) Load(ctx context.Context, documentID, versionID string) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, documentID, versionID)
}

func (s *Store) load(ctx context.Context, documentID, versionID string) (*LoadResult, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}

	env, _, err := s.read(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.seen[documentID] = env.Generation

	i := env.find(versionID)
	if i < 0 {
		return nil, ErrNotFound
	}

	v, removed := s.sanitizeForRead(env.Versions[i])
	return &LoadResult{Version: v, RemovedCount: removed}, nil
}

// List returns every version of documentID, newest first. A corrupted
// document lists as empty together with a *CorruptionError.
func (s *Store) List(ctx context.Context, documentID string) ([]ReportVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list(ctx, documentID)
}

func (s *Store) list(ctx context.Context, documentID string) ([]ReportVersion, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}

	env, _, err := s.read(ctx, documentID)
	if err != nil {
		var corrupt *CorruptionError
		if errors.As(err, &corrupt) {
			return []ReportVersion{}, err
		}
		return nil, err
	}
	s.seen[documentID] = env.Generation

	out := make([]ReportVersion, 0, len(env.Versions))
	for _, v := range env.Versions {
		clean, _ := s.sanitizeForRead(v)
		out = append(out, clean)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VersionNumber > out[j].VersionNumber
	})
	return out, nil
}

// Head returns the newest version of documentID
func (s *Store) Head(ctx context.Context, documentID string) (*ReportVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.list(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return &versions[0], nil
}

// Delete removes one version. Remaining versions keep their numbers.
func (s *Store) Delete(ctx context.Context, documentID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateDocumentID(documentID); err != nil {
		return err
	}

	env, _, err := s.read(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.checkFresh(documentID, env); err != nil {
		return err
	}

	i := env.find(versionID)
	if i < 0 {
		return ErrNotFound
	}

	next := &envelope{
		Generation: env.Generation + 1,
		UpdatedAt:  s.opts.Now().UnixMilli(),
		Versions:   append(append([]ReportVersion(nil), env.Versions[:i]...), env.Versions[i+1:]...),
	}
	if err := s.write(ctx, documentID, next); err != nil {
		return err
	}

	s.log.Info().
		Str("document_id", documentID).
		Str("version_id", versionID).
		Msg("version deleted")
	return nil
}

// EvictAutoSaves deletes the oldest auto-saves of documentID, keeping the
// keepNewest most recent ones. Manual saves are never touched. It returns the
// number of versions removed.
func (s *Store) EvictAutoSaves(ctx context.Context, documentID string, keepNewest int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evict(ctx, documentID, keepNewest, false)
}

func (s *Store) evict(ctx context.Context, documentID string, keepNewest int, force bool) (int, error) {
	if err := validateDocumentID(documentID); err != nil {
		return 0, err
	}
	if keepNewest < 0 {
		return 0, invalid("keep_newest", "must not be negative")
	}

	env, _, err := s.read(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if !force {
		if err := s.checkFresh(documentID, env); err != nil {
			return 0, err
		}
	}

	victims := evictionVictims(env.Versions, keepNewest, "")
	if len(victims) == 0 {
		return 0, nil
	}

	if err := s.archive(ctx, documentID, env); err != nil {
		return 0, err
	}

	next := &envelope{
		Generation: env.Generation + 1,
		UpdatedAt:  s.opts.Now().UnixMilli(),
		Versions:   without(env.Versions, victims),
	}
	if err := s.write(ctx, documentID, next); err != nil {
		return 0, err
	}

	s.opts.Metrics.RecordEviction(len(victims))
	s.log.Info().
		Str("document_id", documentID).
		Int("evicted", len(victims)).
		Int("keep", keepNewest).
		Msg("evicted auto-saves")
	return len(victims), nil
}

// EvictAll runs eviction over every known document with the configured keep
// count and returns the total removed
func (s *Store) EvictAll(ctx context.Context) (int, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, doc := range docs {
		env, _, err := s.read(ctx, doc)
		if err != nil {
			if errors.Is(err, ErrCorruptedData) {
				continue
			}
			return total, err
		}
		// a stale view stays stale after maintenance writes
		prev, tracked := s.seen[doc]
		stale := tracked && prev != env.Generation

		n, err := s.evict(ctx, doc, s.opts.KeepAutoSaves, true)
		if stale {
			s.seen[doc] = prev
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// StorageUsage reports bytes used under the store's namespace
func (s *Store) StorageUsage(ctx context.Context) (StorageUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used, err := s.backend.EstimateUsage(ctx, s.opts.Namespace+":")
	if err != nil {
		return StorageUsage{}, fmt.Errorf("failed to estimate storage usage: %w", err)
	}
	usage := StorageUsage{
		UsedBytes:     used,
		CapacityBytes: s.opts.CapacityBytes,
		Percentage:    s.percent(used),
	}
	s.opts.Metrics.SetUsage(usage.Percentage)
	return usage, nil
}

// Restore appends a new version carrying the content of an older one
func (s *Store) Restore(ctx context.Context, documentID, versionID string, meta Metadata) (*ReportVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.load(ctx, documentID, versionID)
	if err != nil {
		return nil, err
	}
	if meta.ChangeDescription == "" {
		meta.ChangeDescription = fmt.Sprintf("Restored from version %d", old.Version.VersionNumber)
	}
	if meta.ForensicContext == nil {
		meta.ForensicContext = old.Version.ForensicContext
	}
	meta.IsAutoSave = false

	// Restoring identical content is still an explicit audit event
	skip := s.opts.SkipUnchanged
	s.opts.SkipUnchanged = false
	defer func() { s.opts.SkipUnchanged = skip }()

	return s.append(ctx, documentID, old.Version.Content, meta, AppendOptions{})
}

// Reload refreshes this store's view of documentID so that the next write
// does not report a concurrent modification
func (s *Store) Reload(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateDocumentID(documentID); err != nil {
		return err
	}
	env, _, err := s.read(ctx, documentID)
	if err != nil {
		return err
	}
	s.seen[documentID] = env.Generation
	return nil
}

// Documents lists the ids of documents that have been written through this namespace
func (s *Store) Documents(ctx context.Context) ([]string, error) {
	data, ok, err := s.backend.Get(ctx, s.indexKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read document index: %w", err)
	}
	if !ok {
		return []string{}, nil
	}

	var docs []string
	if err := json.Unmarshal(data, &docs); err != nil {
		s.opts.Metrics.RecordCorruption()
		s.log.Error().Err(err).Str("key", s.indexKey()).Msg("document index is corrupted")
		return []string{}, nil
	}
	sort.Strings(docs)
	return docs, nil
}

// Quarantine moves a corrupted document's raw bytes to a recovery key and
// frees the document for new writes. It returns the recovery key.
func (s *Store) Quarantine(ctx context.Context, documentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateDocumentID(documentID); err != nil {
		return "", err
	}

	key := s.documentKey(documentID)
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return "", ErrNotFound
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		return "", invalid("document_id", "document %s is not corrupted", documentID)
	}

	target := s.quarantineKey(documentID, s.opts.Now())
	if err := s.backend.Set(ctx, target, raw); err != nil {
		return "", fmt.Errorf("failed to preserve corrupted data: %w", err)
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("failed to remove corrupted data: %w", err)
	}
	delete(s.seen, documentID)

	s.log.Warn().
		Str("document_id", documentID).
		Str("quarantine_key", target).
		Int("bytes", len(raw)).
		Msg("corrupted document quarantined")
	return target, nil
}

// read loads the envelope for documentID. A missing document is an empty
// envelope with nil raw bytes.
func (s *Store) read(ctx context.Context, documentID string) (*envelope, []byte, error) {
	key := s.documentKey(documentID)
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read versions for %s: %w", documentID, err)
	}
	if !ok {
		return &envelope{}, nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.opts.Metrics.RecordCorruption()
		s.log.Error().
			Err(err).
			Str("document_id", documentID).
			Str("key", key).
			Int("bytes", len(raw)).
			Msg("stored versions could not be decoded, raw bytes preserved")
		return nil, nil, &CorruptionError{DocumentID: documentID, Key: key, Err: err}
	}
	sort.SliceStable(env.Versions, func(i, j int) bool {
		return env.Versions[i].VersionNumber < env.Versions[j].VersionNumber
	})
	return &env, raw, nil
}

// write stores next without quota enforcement. Used by operations that only
// shrink or replace a document.
func (s *Store) write(ctx context.Context, documentID string, next *envelope) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode versions: %w", err)
	}
	if err := s.backend.Set(ctx, s.documentKey(documentID), data); err != nil {
		return fmt.Errorf("failed to write versions for %s: %w", documentID, err)
	}
	s.seen[documentID] = next.Generation
	return nil
}

func (s *Store) checkFresh(documentID string, env *envelope) error {
	seen, ok := s.seen[documentID]
	if !ok || seen == env.Generation {
		return nil
	}
	s.opts.Metrics.RecordConflict()
	s.log.Warn().
		Str("document_id", documentID).
		Uint64("seen_generation", seen).
		Uint64("stored_generation", env.Generation).
		Msg("document modified by another writer")
	return fmt.Errorf("%w: document %s changed since it was last read", ErrConcurrentModification, documentID)
}

func (s *Store) sanitizeForWrite(documentID, content string) (string, error) {
	res := s.opts.Gate.Sanitize(content)
	if !res.IsClean && res.RemovedCount == 0 {
		return "", invalid("content", "content could not be sanitized")
	}
	if res.RemovedCount > 0 {
		s.opts.Metrics.RecordRemovals("write", res.RemovedCount)
		s.log.Warn().
			Str("document_id", documentID).
			Int("removed", res.RemovedCount).
			Msg("removed unsafe content before saving")
	}
	return res.Sanitized, nil
}

// sanitizeForRead returns v with re-sanitized content. The stored record is
// not rewritten.
func (s *Store) sanitizeForRead(v ReportVersion) (ReportVersion, int) {
	res := s.opts.Gate.Sanitize(v.Content)
	removed := res.RemovedCount
	if !res.IsClean && removed == 0 {
		removed = 1
	}
	if removed > 0 {
		s.opts.Metrics.RecordRemovals("read", removed)
		s.log.Warn().
			Str("document_id", v.DocumentID).
			Str("version_id", v.ID).
			Int("removed", removed).
			Msg("stored content failed read-time sanitization")
	}
	v.Content = res.Sanitized
	return v, removed
}

func (s *Store) archive(ctx context.Context, documentID string, env *envelope) error {
	if s.opts.Archiver == nil || env == nil || len(env.Versions) == 0 {
		return nil
	}

	now := s.opts.Now()
	data, err := encodeExport(documentID, env.Versions, now)
	if err != nil {
		return err
	}
	name := documentID + "/" + now.UTC().Format("20060102T150405.000Z") + ".json"
	if err := s.opts.Archiver.Archive(ctx, name, data); err != nil {
		return fmt.Errorf("failed to archive %s before eviction: %w", documentID, err)
	}
	s.log.Info().Str("document_id", documentID).Str("archive", name).Msg("archived versions before eviction")
	return nil
}

func (s *Store) addToIndex(ctx context.Context, documentID string) error {
	docs, err := s.Documents(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(docs, documentID)
	if i < len(docs) && docs[i] == documentID {
		return nil
	}
	docs = append(docs, "")
	copy(docs[i+1:], docs[i:])
	docs[i] = documentID

	data, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, s.indexKey(), data)
}

func (s *Store) percent(used int64) float64 {
	if s.opts.CapacityBytes <= 0 {
		return 0
	}
	return float64(used) / float64(s.opts.CapacityBytes) * 100
}

func entrySize(key string, raw []byte) int64 {
	if raw == nil {
		return 0
	}
	return int64(len(key) + len(raw))
}

// nextNumber is one past the highest number present
func nextNumber(env *envelope) int {
	n := 0
	for _, v := range env.Versions {
		if v.VersionNumber > n {
			n = v.VersionNumber
		}
	}
	return n + 1
}

// evictionVictims returns the ids of all auto-saves except the keep newest.
// protectID is never returned.
func evictionVictims(versions []ReportVersion, keep int, protectID string) map[string]bool {
	var autos []ReportVersion
	for _, v := range versions {
		if v.IsAutoSave {
			autos = append(autos, v)
		}
	}
	if len(autos) <= keep {
		return nil
	}
	sort.SliceStable(autos, func(i, j int) bool {
		return autos[i].VersionNumber < autos[j].VersionNumber
	})

	victims := make(map[string]bool, len(autos)-keep)
	for _, v := range autos[:len(autos)-keep] {
		if v.ID != protectID {
			victims[v.ID] = true
		}
	}
	return victims
}

func without(versions []ReportVersion, ids map[string]bool) []ReportVersion {
	out := make([]ReportVersion, 0, len(versions))
	for _, v := range versions {
		if !ids[v.ID] {
			out = append(out, v)
		}
	}
	return out
}
