package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/dify"
)

type fakeStore struct {
	mu sync.Mutex

	claimFn   func(articleID string) (bool, error)
	claims    []string
	completed map[string]string
	failed    map[string]string
	queuedIDs []string
	released  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		completed: make(map[string]string),
		failed:    make(map[string]string),
	}
}

func (f *fakeStore) ClaimQueuedArticle(_ context.Context, articleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, articleID)
	if f.claimFn != nil {
		return f.claimFn(articleID)
	}
	return true, nil
}

func (f *fakeStore) CompleteArticleGeneration(_ context.Context, articleID, content string, _ json.RawMessage, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[articleID] = content
	return nil
}

func (f *fakeStore) FailArticleGeneration(_ context.Context, articleID, content, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[articleID] = content
	return nil
}

func (f *fakeStore) QueuedArticleIDs(context.Context) ([]string, error) {
	return f.queuedIDs, nil
}

func (f *fakeStore) ReleaseStaleProcessing(context.Context, time.Time) (int, error) {
	return f.released, nil
}

func (f *fakeStore) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claims)
}

type fakeGenerator struct {
	calls   atomic.Int32
	block   chan struct{}
	outputs dify.ArticleOutputs
	err     error
}

func (g *fakeGenerator) RunArticleWorkflow(ctx context.Context, _ dify.ArticleInputs) (dify.ArticleOutputs, error) {
	g.calls.Add(1)
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return dify.ArticleOutputs{}, ctx.Err()
		}
	}
	return g.outputs, g.err
}

func waitFinished(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for generation to finish")
		return nil
	}
}

func TestEnqueueDeduplicatesWithinProcess(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{
		block:   make(chan struct{}),
		outputs: dify.ArticleOutputs{GeneratedArticle: "body"},
	}
	finished := make(chan error, 2)
	q := New(Options{
		Store:     store,
		Generator: gen,
		OnFinished: func(_ string, err error) {
			finished <- err
		},
	})

	if !q.Enqueue("art_1", dify.ArticleInputs{}) {
		t.Fatal("first Enqueue should be accepted")
	}
	if q.Enqueue("art_1", dify.ArticleInputs{}) {
		t.Error("duplicate Enqueue while in flight should be a no-op")
	}

	close(gen.block)
	if err := waitFinished(t, finished); err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	if got := gen.calls.Load(); got != 1 {
		t.Errorf("expected exactly one workflow call, got %d", got)
	}
	if store.claimCount() != 1 {
		t.Errorf("expected one claim, got %d", store.claimCount())
	}
}

func TestEnqueueClaimLostToAnotherReplica(t *testing.T) {
	store := newFakeStore()
	store.claimFn = func(string) (bool, error) { return false, nil }
	gen := &fakeGenerator{}
	q := New(Options{Store: store, Generator: gen})

	if q.Enqueue("art_1", dify.ArticleInputs{}) {
		t.Error("Enqueue should report false when the row claim is lost")
	}
	if got := gen.calls.Load(); got != 0 {
		t.Errorf("expected no workflow call, got %d", got)
	}
	if status := q.Status(); status.Count != 0 {
		t.Errorf("lost claim must not stay in flight, got %+v", status)
	}
}

func TestGenerationSuccessLandsDraftContent(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{outputs: dify.ArticleOutputs{
		GeneratedArticle: "# Title\n\nGenerated body.",
		StructuredOutput: json.RawMessage(`{"images":[]}`),
		ContentAnalyst:   "solid draft",
	}}
	finished := make(chan error, 1)
	q := New(Options{
		Store:      store,
		Generator:  gen,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	q.Enqueue("art_ok", dify.ArticleInputs{WritingPurpose: "seo"})
	if err := waitFinished(t, finished); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	store.mu.Lock()
	content := store.completed["art_ok"]
	store.mu.Unlock()
	if content == "" {
		t.Fatal("expected non-empty content persisted on success")
	}
}

func TestGenerationFailureWritesFailureContent(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{err: errors.New("workflow returned HTTP 500: internal error")}
	finished := make(chan error, 1)
	q := New(Options{
		Store:      store,
		Generator:  gen,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	q.Enqueue("art_bad", dify.ArticleInputs{})
	if err := waitFinished(t, finished); err == nil {
		t.Fatal("expected failure to be reported")
	}

	store.mu.Lock()
	content := store.failed["art_bad"]
	store.mu.Unlock()
	if !strings.HasPrefix(content, "Generation failed:") {
		t.Errorf("failure content must start with the failure marker, got %q", content)
	}
	if !strings.Contains(content, "HTTP 500") {
		t.Errorf("failure content must embed the error detail, got %q", content)
	}
	if len(store.completed) != 0 {
		t.Error("failed generation must not persist content as draft")
	}
}

func TestStatusReflectsInflight(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{block: make(chan struct{})}
	finished := make(chan error, 2)
	q := New(Options{
		Store:      store,
		Generator:  gen,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	q.Enqueue("art_b", dify.ArticleInputs{})
	q.Enqueue("art_a", dify.ArticleInputs{})

	status := q.Status()
	if status.Count != 2 {
		t.Fatalf("expected 2 in flight, got %d", status.Count)
	}
	if status.ArticleIDs[0] != "art_a" || status.ArticleIDs[1] != "art_b" {
		t.Errorf("expected sorted IDs, got %v", status.ArticleIDs)
	}

	close(gen.block)
	waitFinished(t, finished)
	waitFinished(t, finished)

	if status := q.Status(); status.Count != 0 {
		t.Errorf("expected empty in-flight set after completion, got %+v", status)
	}
}

func TestResumeReclaimsQueuedRows(t *testing.T) {
	store := newFakeStore()
	store.queuedIDs = []string{"art_1", "art_2"}
	store.released = 1
	gen := &fakeGenerator{outputs: dify.ArticleOutputs{GeneratedArticle: "body"}}
	finished := make(chan error, 2)
	q := New(Options{
		Store:     store,
		Generator: gen,
		LoadParams: func(_ context.Context, articleID string) (dify.ArticleInputs, error) {
			return dify.ArticleInputs{WritingPurpose: articleID}, nil
		},
		OnFinished: func(_ string, err error) { finished <- err },
	})

	if err := q.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitFinished(t, finished)
	waitFinished(t, finished)

	if got := gen.calls.Load(); got != 2 {
		t.Errorf("expected both queued rows to run, got %d calls", got)
	}
}

func TestShutdownStopsIntakeAndDrains(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{block: make(chan struct{}), outputs: dify.ArticleOutputs{GeneratedArticle: "body"}}
	q := New(Options{Store: store, Generator: gen})

	q.Enqueue("art_1", dify.ArticleInputs{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gen.block)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if q.Enqueue("art_2", dify.ArticleInputs{}) {
		t.Error("Enqueue after Shutdown must be rejected")
	}
}
