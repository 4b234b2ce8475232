package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_triples_subject", "idx_triples_predicate", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "ltiqa.db")); err != nil {
		t.Errorf("ltiqa.db not created: %v", err)
	}
}

func TestAppendAndReplayTriples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []TripleRow{
		{Subject: "q1", Predicate: "type", Object: "Question", ObjectKind: "iri"},
		{Subject: "q1", Predicate: "questionText", Object: "Sta je LTI?"},
	}
	second := []TripleRow{
		{Subject: "a1", Predicate: "confidenceScore", Object: "0.8", Datatype: "xsd:float"},
	}
	if err := s.AppendTriples(ctx, first); err != nil {
		t.Fatalf("AppendTriples: %v", err)
	}
	if err := s.AppendTriples(ctx, second); err != nil {
		t.Fatalf("AppendTriples: %v", err)
	}

	var got []TripleRow
	err := s.ReplayTriples(ctx, func(r TripleRow) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayTriples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("replayed %d triples, want 3", len(got))
	}
	if got[0].Predicate != "type" || got[1].Predicate != "questionText" || got[2].Predicate != "confidenceScore" {
		t.Errorf("replay order = %q, %q, %q", got[0].Predicate, got[1].Predicate, got[2].Predicate)
	}
	if got[1].ObjectKind != "literal" {
		t.Errorf("default object kind = %q, want literal", got[1].ObjectKind)
	}
	if got[2].Datatype != "xsd:float" {
		t.Errorf("datatype = %q, want xsd:float", got[2].Datatype)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Errorf("seq not increasing: %d then %d", got[i-1].Seq, got[i].Seq)
		}
	}
}

func TestReplayTriples_StopsOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendTriples(ctx, []TripleRow{
		{Subject: "a", Predicate: "p", Object: "1"},
		{Subject: "b", Predicate: "p", Object: "2"},
	}); err != nil {
		t.Fatalf("AppendTriples: %v", err)
	}

	stop := errors.New("stop")
	var seen int
	err := s.ReplayTriples(ctx, func(TripleRow) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if seen != 1 {
		t.Errorf("visited %d rows, want 1", seen)
	}
}

func TestTriplesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.AppendTriples(ctx, []TripleRow{{Subject: "q", Predicate: "p", Object: "o"}}); err != nil {
		t.Fatalf("AppendTriples: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	var n int
	if err := s2.ReplayTriples(ctx, func(TripleRow) error { n++; return nil }); err != nil {
		t.Fatalf("ReplayTriples: %v", err)
	}
	if n != 1 {
		t.Errorf("replayed %d triples after reopen, want 1", n)
	}
}

func TestDocumentRegistry(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertDocument(Document{Course: "1", Filename: "b.pdf", FileType: "pdf"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := s.UpsertDocument(Document{Course: "1", Filename: "a.txt", FileType: "txt", Fragments: 3, Status: DocIndexed}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := s.UpsertDocument(Document{Course: "2", Filename: "c.md", FileType: "md"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	d, err := s.GetDocument("1", "b.pdf")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if d.Status != DocPending {
		t.Errorf("default status = %q, want %q", d.Status, DocPending)
	}

	if err := s.UpsertDocument(Document{Course: "1", Filename: "b.pdf", FileType: "pdf", Fragments: 7, Status: DocIndexed}); err != nil {
		t.Fatalf("UpsertDocument update: %v", err)
	}

	docs, err := s.ListDocuments("1")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Filename != "a.txt" || docs[1].Filename != "b.pdf" {
		t.Errorf("order = %q, %q", docs[0].Filename, docs[1].Filename)
	}
	if docs[1].Fragments != 7 || docs[1].Status != DocIndexed {
		t.Errorf("updated doc = %+v", docs[1])
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDocument("1", "missing.pdf")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJobsTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO jobs (id, type, payload_json) VALUES ('j1', 'ingest_document', '{"doc_id":"d1"}')`)
	if err != nil {
		t.Fatalf("INSERT into jobs: %v", err)
	}

	var id, typ, payload, status string
	var attempts, maxAttempts int
	err = s.db.QueryRow(`SELECT id, type, payload_json, status, attempts, max_attempts FROM jobs WHERE id = 'j1'`).
		Scan(&id, &typ, &payload, &status, &attempts, &maxAttempts)
	if err != nil {
		t.Fatalf("SELECT from jobs: %v", err)
	}

	if id != "j1" {
		t.Errorf("id = %q, want %q", id, "j1")
	}
	if typ != "ingest_document" {
		t.Errorf("type = %q, want %q", typ, "ingest_document")
	}
	if payload != `{"doc_id":"d1"}` {
		t.Errorf("payload_json = %q, want %q", payload, `{"doc_id":"d1"}`)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if maxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", maxAttempts)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "ingest_document",
		PayloadJSON: `{"doc":"d1"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Type != "ingest_document" {
		t.Errorf("Type = %q, want %q", got.Type, "ingest_document")
	}
	if got.PayloadJSON != `{"doc":"d1"}` {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, `{"doc":"d1"}`)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "ingest_document",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"a"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Type != "a" {
		t.Errorf("Type = %q, want %q", got.Type, "a")
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-first", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}

	if err := s.EnqueueJob(Job{ID: "j-second", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-complete'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want %q", status, "completed")
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, lastError string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'j-fail-inc'`).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if lastError != "something broke" {
		t.Errorf("last_error = %q, want %q", lastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-fail-max'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want %q", status, "failed")
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-backoff", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if err := s.FailJob("j-backoff", "retry"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var runAfterStr string
	if err := s.db.QueryRow(`SELECT run_after FROM jobs WHERE id = 'j-backoff'`).Scan(&runAfterStr); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !runAfter.After(before) {
		t.Errorf("run_after %v should be after %v", runAfter, before)
	}
}

func TestFailJobPermanent(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-perm", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJobPermanent("j-perm", "empty document"); err != nil {
		t.Fatalf("FailJobPermanent: %v", err)
	}

	j, err := s.GetJob("j-perm")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobFailed {
		t.Errorf("status = %q, want %q", j.Status, JobFailed)
	}
	if j.LastError != "empty document" {
		t.Errorf("last_error = %q", j.LastError)
	}

	if err := s.FailJobPermanent("missing", "x"); err != ErrNotFound {
		t.Errorf("FailJobPermanent(missing) = %v, want ErrNotFound", err)
	}
}

func TestListJobsAndPending(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"j1", "j2", "j3"} {
		if err := s.EnqueueJob(Job{ID: id, Type: "x", PayloadJSON: `{}`}); err != nil {
			t.Fatalf("EnqueueJob %s: %v", id, err)
		}
	}
	claimed, err := s.ClaimNextJob([]string{"x"})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob: %v %v", claimed, err)
	}
	if err := s.CompleteJob(claimed.ID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	jobs, err := s.ListJobs(10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("ListJobs returned %d, want 3", len(jobs))
	}

	n, err := s.PendingJobs()
	if err != nil {
		t.Fatalf("PendingJobs: %v", err)
	}
	if n != 2 {
		t.Errorf("PendingJobs = %d, want 2", n)
	}

	if _, err := s.GetJob("nope"); err != ErrNotFound {
		t.Errorf("GetJob(nope) = %v, want ErrNotFound", err)
	}
}

func TestRetryJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-retry", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-retry", "backend down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if err := s.RetryJob("j-retry"); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}

	j, err := s.GetJob("j-retry")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobPending || j.Attempts != 0 {
		t.Errorf("status = %q attempts = %d, want pending/0", j.Status, j.Attempts)
	}
	if claimed, err := s.ClaimNextJob([]string{"x"}); err != nil || claimed == nil {
		t.Errorf("retried job not claimable: %v %v", claimed, err)
	}

	if err := s.RetryJob("j-retry"); err != ErrNotFound {
		t.Errorf("RetryJob(running) = %v, want ErrNotFound", err)
	}
}
