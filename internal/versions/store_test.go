package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/report-vault/internal/kv"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, backend kv.Backend, mutate func(*Options)) *Store {
	t.Helper()

	opts := DefaultOptions()
	opts.CapacityBytes = 10 << 20
	opts.Now = (&fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}).Now
	if mutate != nil {
		mutate(&opts)
	}
	return New(backend, opts)
}

func mustAppend(t *testing.T, s *Store, doc, content string, auto bool) *ReportVersion {
	t.Helper()

	v, err := s.Append(context.Background(), doc, content, Metadata{IsAutoSave: auto})
	if err != nil {
		t.Fatalf("Append(%q) failed: %v", content, err)
	}
	return v
}

func TestAppendAssignsMonotonicNumbers(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)

	var prev *ReportVersion
	for i := 1; i <= 4; i++ {
		v := mustAppend(t, s, "incident-42", fmt.Sprintf("<p>draft %d</p>", i), false)
		if v.VersionNumber != i {
			t.Errorf("Expected version %d, got %d", i, v.VersionNumber)
		}
		if v.ID == "" {
			t.Error("Expected a version id")
		}
		if prev == nil {
			if v.DiffStats != nil {
				t.Error("Expected no diff stats for the first version")
			}
		} else {
			if v.CreatedAt < prev.CreatedAt {
				t.Errorf("created_at went backwards: %d < %d", v.CreatedAt, prev.CreatedAt)
			}
			if v.DiffStats == nil || v.DiffStats.Modifications != 1 {
				t.Errorf("Expected one modification, got %+v", v.DiffStats)
			}
		}
		if v.ChangeDescription != "Manual save" {
			t.Errorf("Expected default description, got %q", v.ChangeDescription)
		}
		prev = v
	}
}

func TestAppendSkipsUnchangedContent(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)

	first := mustAppend(t, s, "doc", "A", true)
	again := mustAppend(t, s, "doc", "A", true)
	mustAppend(t, s, "doc", "B", true)

	if again.ID != first.ID {
		t.Errorf("Expected unchanged save to return the head %s, got %s", first.ID, again.ID)
	}

	list, err := s.List(context.Background(), "doc")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(list))
	}
	if list[0].Content != "B" || list[0].VersionNumber != 2 {
		t.Errorf("Expected B as v2, got %q v%d", list[0].Content, list[0].VersionNumber)
	}
	if list[1].Content != "A" || list[1].VersionNumber != 1 {
		t.Errorf("Expected A as v1, got %q v%d", list[1].Content, list[1].VersionNumber)
	}
}

func TestAppendWithoutSkipKeepsDuplicates(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), func(o *Options) { o.SkipUnchanged = false })

	mustAppend(t, s, "doc", "A", false)
	mustAppend(t, s, "doc", "A", false)

	list, _ := s.List(context.Background(), "doc")
	if len(list) != 2 {
		t.Errorf("Expected 2 versions, got %d", len(list))
	}
}

func TestAppendSanitizesContent(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)

	v := mustAppend(t, s, "doc", "<div><script>alert('x')</script>Hello</div>", false)
	if v.Content != "<div>Hello</div>" {
		t.Errorf("Expected sanitized content, got %q", v.Content)
	}
}

func TestLoadResanitizesStoredContent(t *testing.T) {
	backend := kv.NewMemoryBackend()
	s := newTestStore(t, backend, nil)
	ctx := context.Background()

	v := mustAppend(t, s, "doc", "<p>clean</p>", false)

	// tamper with the stored record behind the store's back
	key := s.documentKey("doc")
	raw, _, _ := backend.Get(ctx, key)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to decode stored envelope: %v", err)
	}
	env.Versions[0].Content = `<p onclick="steal()">clean</p><script>steal()</script>`
	tampered, _ := json.Marshal(env)
	backend.Set(ctx, key, tampered)

	res, err := s.Load(ctx, "doc", v.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.RemovedCount != 2 {
		t.Errorf("Expected 2 removals, got %d", res.RemovedCount)
	}
	if res.Version.Content != "<p>clean</p>" {
		t.Errorf("Expected sanitized content, got %q", res.Version.Content)
	}

	list, _ := s.List(ctx, "doc")
	if strings.Contains(list[0].Content, "script") {
		t.Errorf("List returned unsanitized content %q", list[0].Content)
	}

	// the stored record is left as found
	raw, _, _ = backend.Get(ctx, key)
	if !strings.Contains(string(raw), "steal()") {
		t.Error("Expected stored record to be untouched by reads")
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)
	mustAppend(t, s, "doc", "A", false)

	if _, err := s.Load(context.Background(), "doc", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(context.Background(), "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty document, got %v", err)
	}
}

// fill appends autos auto-saves and manual saves, manual ones spread evenly
func fill(t *testing.T, s *Store, doc string, autos, manual int) {
	t.Helper()

	every := autos / (manual + 1)
	n := 0
	for i := 0; i < autos; i++ {
		mustAppend(t, s, doc, fmt.Sprintf("<p>auto %d</p>", i), true)
		if manual > 0 && every > 0 && (i+1)%every == 0 && n < manual {
			mustAppend(t, s, doc, fmt.Sprintf("<p>manual %d</p>", n), false)
			n++
		}
	}
	for ; n < manual; n++ {
		mustAppend(t, s, doc, fmt.Sprintf("<p>manual %d</p>", n), false)
	}
}

func TestEvictAutoSavesKeepsManualSaves(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), func(o *Options) { o.AutoEvict = false })
	ctx := context.Background()

	fill(t, s, "doc", 10, 2)

	usage, err := s.StorageUsage(ctx)
	if err != nil {
		t.Fatalf("StorageUsage failed: %v", err)
	}
	s.SetQuota(usage.UsedBytes*100/92, 90)
	usage, _ = s.StorageUsage(ctx)
	if usage.Percentage < 91.9 {
		t.Fatalf("Expected storage around 92%%, got %.2f", usage.Percentage)
	}

	before, _ := s.List(ctx, "doc")
	evicted, err := s.EvictAutoSaves(ctx, "doc", 2)
	if err != nil {
		t.Fatalf("EvictAutoSaves failed: %v", err)
	}
	if evicted != 8 {
		t.Errorf("Expected 8 evicted, got %d", evicted)
	}

	after, _ := s.List(ctx, "doc")
	if len(after) != 4 {
		t.Fatalf("Expected 4 versions, got %d", len(after))
	}

	remaining := make(map[string]ReportVersion)
	for _, v := range after {
		remaining[v.ID] = v
	}
	var newestAutos []int
	for _, v := range before {
		if !v.IsAutoSave {
			if _, ok := remaining[v.ID]; !ok {
				t.Errorf("Manual save v%d was evicted", v.VersionNumber)
			}
		} else if len(newestAutos) < 2 {
			newestAutos = append(newestAutos, v.VersionNumber)
			if _, ok := remaining[v.ID]; !ok {
				t.Errorf("Recent auto-save v%d was evicted", v.VersionNumber)
			}
		}
	}

	usageAfter, _ := s.StorageUsage(ctx)
	if usageAfter.UsedBytes >= usage.UsedBytes {
		t.Errorf("Expected usage to drop, %d -> %d", usage.UsedBytes, usageAfter.UsedBytes)
	}
}

func TestEvictAutoSavesNothingToDo(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)
	fill(t, s, "doc", 2, 1)

	n, err := s.EvictAutoSaves(context.Background(), "doc", 5)
	if err != nil || n != 0 {
		t.Errorf("Expected no eviction, got %d, %v", n, err)
	}
	if _, err := s.EvictAutoSaves(context.Background(), "doc", -1); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for negative keep, got %v", err)
	}
}

func TestAppendAutoEvictsAboveWarnThreshold(t *testing.T) {
	backend := kv.NewMemoryBackend()
	ctx := context.Background()

	filler := newTestStore(t, backend, func(o *Options) { o.AutoEvict = false })
	fill(t, filler, "doc", 10, 2)
	usage, _ := filler.StorageUsage(ctx)
	capacity := usage.UsedBytes * 100 / 92

	s := newTestStore(t, backend, func(o *Options) {
		o.CapacityBytes = capacity
		o.KeepAutoSaves = 2
	})
	v, err := s.Append(ctx, "doc", "<p>final</p>", Metadata{ChangeDescription: "Final review"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	list, _ := s.List(ctx, "doc")
	if len(list) != 5 {
		t.Fatalf("Expected 2 manual + 2 auto + new = 5 versions, got %d", len(list))
	}
	if list[0].ID != v.ID {
		t.Error("Expected the new version at the head")
	}
	autos := 0
	for _, v := range list {
		if v.IsAutoSave {
			autos++
		}
	}
	if autos != 2 {
		t.Errorf("Expected 2 auto-saves kept, got %d", autos)
	}
}

func TestAppendQuotaExceeded(t *testing.T) {
	backend := kv.NewMemoryBackend()
	s := newTestStore(t, backend, func(o *Options) { o.CapacityBytes = 256 })

	_, err := s.Append(context.Background(), "doc", strings.Repeat("<p>evidence</p>", 50), Metadata{})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.CapacityBytes != 256 || qe.ProjectedBytes <= 256 {
		t.Errorf("Unexpected quota error %+v", qe)
	}
	if keys := backend.Keys(""); len(keys) != 0 {
		t.Errorf("Expected nothing written, found %v", keys)
	}
}

func TestAppendQuotaExceededWhenEvictionInsufficient(t *testing.T) {
	backend := kv.NewMemoryBackend()
	ctx := context.Background()
	s := newTestStore(t, backend, nil)

	fill(t, s, "doc", 0, 3)
	usage, _ := s.StorageUsage(ctx)
	s.SetQuota(usage.UsedBytes+10, 90)

	// only manual saves exist, eviction cannot free anything
	_, err := s.Append(ctx, "doc", "<p>"+strings.Repeat("x", 200)+"</p>", Metadata{})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
	list, _ := s.List(ctx, "doc")
	if len(list) != 3 {
		t.Errorf("Expected manual saves untouched, got %d versions", len(list))
	}
}

func TestAppendValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		meta Metadata
	}{
		{"empty document id", "", Metadata{}},
		{"document id with colon", "a:b", Metadata{}},
		{"long document id", strings.Repeat("d", 129), Metadata{}},
		{"long description", "doc", Metadata{ChangeDescription: strings.Repeat("x", 501)}},
		{"bad case id", "doc", Metadata{ForensicContext: &ForensicContext{CaseID: "#1"}}},
		{"short case id", "doc", Metadata{ForensicContext: &ForensicContext{CaseID: "ab"}}},
		{"bad priority", "doc", Metadata{ForensicContext: &ForensicContext{Priority: "urgent"}}},
		{"long notes", "doc", Metadata{ForensicContext: &ForensicContext{Notes: strings.Repeat("n", 1001)}}},
		{"empty tag", "doc", Metadata{ForensicContext: &ForensicContext{EvidenceTags: []string{" "}}}},
		{"long tag", "doc", Metadata{ForensicContext: &ForensicContext{EvidenceTags: []string{strings.Repeat("t", 31)}}}},
		{"too many tags", "doc", Metadata{ForensicContext: &ForensicContext{EvidenceTags: []string{
			"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11",
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := kv.NewMemoryBackend()
			s := newTestStore(t, backend, nil)

			_, err := s.Append(context.Background(), tt.doc, "<p>x</p>", tt.meta)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Errorf("Expected a field in %v", err)
			}
			if keys := backend.Keys(""); len(keys) != 0 {
				t.Errorf("Expected nothing written, found %v", keys)
			}
		})
	}
}

func TestAppendNormalizesForensicContext(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)

	fc := &ForensicContext{
		CaseID:       "IR-2024-001",
		EvidenceTags: []string{"malware", " malware ", "phishing"},
		Priority:     PriorityHigh,
	}
	v, err := s.Append(context.Background(), "doc", "<p>x</p>", Metadata{ForensicContext: fc, IsAutoSave: true})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := strings.Join(v.ForensicContext.EvidenceTags, ","); got != "malware,phishing" {
		t.Errorf("Expected deduplicated tags, got %s", got)
	}
	if v.ChangeDescription != "Auto-save" {
		t.Errorf("Expected auto-save description, got %q", v.ChangeDescription)
	}

	fc.CaseID = "CHANGED"
	if v.ForensicContext.CaseID != "IR-2024-001" {
		t.Error("Stored forensic context shares memory with the caller")
	}
}

func TestDeleteKeepsNumbering(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)
	ctx := context.Background()

	mustAppend(t, s, "doc", "A", false)
	v2 := mustAppend(t, s, "doc", "B", false)
	v3 := mustAppend(t, s, "doc", "C", false)

	if err := s.Delete(ctx, "doc", v2.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "doc", v2.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	list, _ := s.List(ctx, "doc")
	if len(list) != 2 || list[0].VersionNumber != 3 || list[1].VersionNumber != 1 {
		t.Errorf("Unexpected versions after delete: %+v", list)
	}

	// the next number follows the highest one present
	if err := s.Delete(ctx, "doc", v3.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	v := mustAppend(t, s, "doc", "D", false)
	if v.VersionNumber != 2 {
		t.Errorf("Expected version 2, got %d", v.VersionNumber)
	}
}

func TestAppendAfterDeletingHead(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)
	ctx := context.Background()

	mustAppend(t, s, "doc", "<p>a</p>", false)
	mustAppend(t, s, "doc", "<p>b</p>", false)
	v3 := mustAppend(t, s, "doc", "<p>c</p>", false)

	if err := s.Delete(ctx, "doc", v3.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	v := mustAppend(t, s, "doc", "<p>d</p>", false)
	if v.VersionNumber != 3 {
		t.Errorf("Expected version 3, got %d", v.VersionNumber)
	}

	head, err := s.Head(ctx, "doc")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if head.ID != v.ID || head.Content != "<p>d</p>" {
		t.Errorf("Expected new head %s, got %+v", v.ID, head)
	}
}

func TestRestore(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), nil)
	ctx := context.Background()

	v1 := mustAppend(t, s, "doc", "<p>A</p>", false)
	mustAppend(t, s, "doc", "<p>B</p>", true)

	v, err := s.Restore(ctx, "doc", v1.ID, Metadata{})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if v.VersionNumber != 3 || v.Content != "<p>A</p>" || v.IsAutoSave {
		t.Errorf("Unexpected restored version %+v", v)
	}
	if v.ChangeDescription != "Restored from version 1" {
		t.Errorf("Unexpected description %q", v.ChangeDescription)
	}

	if _, err := s.Restore(ctx, "doc", "missing", Metadata{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentModification(t *testing.T) {
	backend := kv.NewMemoryBackend()
	ctx := context.Background()
	tabA := newTestStore(t, backend, nil)
	tabB := newTestStore(t, backend, nil)

	mustAppend(t, tabA, "doc", "A", false)
	if _, err := tabB.List(ctx, "doc"); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	mustAppend(t, tabA, "doc", "B", false)

	_, err := tabB.Append(ctx, "doc", "C", Metadata{})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}

	v, err := tabB.AppendWithOptions(ctx, "doc", "C", Metadata{}, AppendOptions{Force: true})
	if err != nil {
		t.Fatalf("Forced append failed: %v", err)
	}
	if v.VersionNumber != 3 {
		t.Errorf("Expected version 3, got %d", v.VersionNumber)
	}

	// tab A is now the stale one
	if _, err := tabA.Append(ctx, "doc", "D", Metadata{}); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}
	if err := tabA.Reload(ctx, "doc"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, err := tabA.Append(ctx, "doc", "D", Metadata{}); err != nil {
		t.Errorf("Append after reload failed: %v", err)
	}
}

func TestCorruptedDocument(t *testing.T) {
	backend := kv.NewMemoryBackend()
	ctx := context.Background()
	s := newTestStore(t, backend, nil)

	key := s.documentKey("doc")
	garbage := []byte(`{"generation": 3, "versions": [{"id": `)
	backend.Set(ctx, key, garbage)

	list, err := s.List(ctx, "doc")
	if !errors.Is(err, ErrCorruptedData) {
		t.Fatalf("Expected ErrCorruptedData, got %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("Expected an empty list, got %v", list)
	}

	if _, err := s.Append(ctx, "doc", "A", Metadata{}); !errors.Is(err, ErrCorruptedData) {
		t.Fatalf("Expected append to refuse corrupted document, got %v", err)
	}
	raw, ok, _ := backend.Get(ctx, key)
	if !ok || string(raw) != string(garbage) {
		t.Fatal("Expected raw bytes to be preserved")
	}

	target, err := s.Quarantine(ctx, "doc")
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if !strings.HasPrefix(target, "report-vault:corrupt:doc:") {
		t.Errorf("Unexpected quarantine key %s", target)
	}
	raw, ok, _ = backend.Get(ctx, target)
	if !ok || string(raw) != string(garbage) {
		t.Error("Expected raw bytes under the quarantine key")
	}

	v := mustAppend(t, s, "doc", "A", false)
	if v.VersionNumber != 1 {
		t.Errorf("Expected a fresh history, got version %d", v.VersionNumber)
	}

	if _, err := s.Quarantine(ctx, "doc"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected healthy document to be refused, got %v", err)
	}
}

func TestStorageUsage(t *testing.T) {
	backend := kv.NewMemoryBackend()
	ctx := context.Background()
	s := newTestStore(t, backend, func(o *Options) { o.CapacityBytes = 1 << 20 })

	mustAppend(t, s, "doc", "<p>hello</p>", false)

	usage, err := s.StorageUsage(ctx)
	if err != nil {
		t.Fatalf("StorageUsage failed: %v", err)
	}
	want, _ := backend.EstimateUsage(ctx, "report-vault:")
	if usage.UsedBytes != want || want == 0 {
		t.Errorf("Expected %d bytes used, got %d", want, usage.UsedBytes)
	}
	if usage.CapacityBytes != 1<<20 {
		t.Errorf("Unexpected capacity %d", usage.CapacityBytes)
	}
	if p := float64(want) / float64(1<<20) * 100; usage.Percentage != p {
		t.Errorf("Expected %.4f%%, got %.4f%%", p, usage.Percentage)
	}
}

func TestDocumentsAndEvictAll(t *testing.T) {
	s := newTestStore(t, kv.NewMemoryBackend(), func(o *Options) {
		o.AutoEvict = false
		o.KeepAutoSaves = 1
	})
	ctx := context.Background()

	fill(t, s, "beta", 3, 0)
	fill(t, s, "alpha", 4, 1)

	docs, err := s.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if strings.Join(docs, ",") != "alpha,beta" {
		t.Errorf("Unexpected documents %v", docs)
	}

	n, err := s.EvictAll(ctx)
	if err != nil {
		t.Fatalf("EvictAll failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 evicted, got %d", n)
	}
}

type recordingArchiver struct {
	names []string
	data  [][]byte
	err   error
}

func (r *recordingArchiver) Archive(ctx context.Context, name string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.names = append(r.names, name)
	r.data = append(r.data, data)
	return nil
}

func TestEvictionArchivesFirst(t *testing.T) {
	arch := &recordingArchiver{}
	s := newTestStore(t, kv.NewMemoryBackend(), func(o *Options) { o.Archiver = arch })
	ctx := context.Background()

	fill(t, s, "doc", 4, 0)
	if _, err := s.EvictAutoSaves(ctx, "doc", 1); err != nil {
		t.Fatalf("EvictAutoSaves failed: %v", err)
	}

	if len(arch.names) != 1 || !strings.HasPrefix(arch.names[0], "doc/") {
		t.Fatalf("Expected one archive under doc/, got %v", arch.names)
	}
	var exp Export
	if err := json.Unmarshal(arch.data[0], &exp); err != nil {
		t.Fatalf("Archive is not an export: %v", err)
	}
	if exp.VersionCount != 4 {
		t.Errorf("Expected the pre-eviction history in the archive, got %d versions", exp.VersionCount)
	}
}

func TestEvictionAbortsWhenArchiveFails(t *testing.T) {
	arch := &recordingArchiver{err: errors.New("container unavailable")}
	s := newTestStore(t, kv.NewMemoryBackend(), func(o *Options) { o.Archiver = arch })
	ctx := context.Background()

	fill(t, s, "doc", 4, 0)
	if _, err := s.EvictAutoSaves(ctx, "doc", 1); err == nil {
		t.Fatal("Expected eviction to fail")
	}
	list, _ := s.List(ctx, "doc")
	if len(list) != 4 {
		t.Errorf("Expected nothing evicted, got %d versions", len(list))
	}
}

func TestStoreBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) kv.Backend{
		"memory": func(t *testing.T) kv.Backend {
			return kv.NewMemoryBackend()
		},
		"sqlite": func(t *testing.T) kv.Backend {
			b, err := kv.NewSQLiteBackend(filepath.Join(t.TempDir(), "vault.db"))
			if err != nil {
				t.Fatalf("Failed to open sqlite: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
		"redis": func(t *testing.T) kv.Backend {
			mr := miniredis.RunT(t)
			b, err := kv.NewRedisBackend("redis://" + mr.Addr())
			if err != nil {
				t.Fatalf("Failed to connect to redis: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t, open(t), func(o *Options) { o.AutoEvict = false })

			fill(t, s, "doc", 5, 1)
			if n, err := s.EvictAutoSaves(ctx, "doc", 2); err != nil || n != 3 {
				t.Fatalf("Expected 3 evicted, got %d, %v", n, err)
			}

			list, err := s.List(ctx, "doc")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 3 {
				t.Errorf("Expected 3 versions, got %d", len(list))
			}

			usage, err := s.StorageUsage(ctx)
			if err != nil || usage.UsedBytes == 0 {
				t.Errorf("Expected non-zero usage, got %+v, %v", usage, err)
			}
		})
	}
}
