// Package queue runs article generation in the background. An in-process set
// deduplicates submissions within one server; the durable row claim in the
// store is what keeps multiple replicas from generating the same article.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/dify"
)

// ArticleStore is the slice of the data store the queue drives.
type ArticleStore interface {
	ClaimQueuedArticle(ctx context.Context, articleID string) (bool, error)
	CompleteArticleGeneration(ctx context.Context, articleID, content string, structured json.RawMessage, analystNotes string) error
	FailArticleGeneration(ctx context.Context, articleID, content, detail string) error
	QueuedArticleIDs(ctx context.Context) ([]string, error)
	ReleaseStaleProcessing(ctx context.Context, cutoff time.Time) (int, error)
}

// Generator executes the article workflow. Satisfied by *dify.Client.
type Generator interface {
	RunArticleWorkflow(ctx context.Context, in dify.ArticleInputs) (dify.ArticleOutputs, error)
}

type Options struct {
	Store     ArticleStore
	Generator Generator
	// Workers bounds concurrent generations per process.
	Workers int
	// Timeout bounds one workflow call.
	Timeout time.Duration
	// StaleAfter is how long a processing row may sit before Resume treats
	// its worker as dead.
	StaleAfter time.Duration
	// LoadParams rebuilds workflow inputs from a stored article, used when
	// resuming queued rows after a restart.
	LoadParams func(ctx context.Context, articleID string) (dify.ArticleInputs, error)
	// OnFinished, when set, runs after an article reaches draft or
	// generation_failed. err is nil on success.
	OnFinished func(articleID string, err error)
}

type Status struct {
	Count      int      `json:"count"`
	ArticleIDs []string `json:"articleIds"`
}

type Queue struct {
	opts Options

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * opts.Timeout
	}
	return &Queue{
		opts:     opts,
		inflight: make(map[string]struct{}),
		sem:      make(chan struct{}, opts.Workers),
	}
}

// Enqueue claims the article and hands it to a background worker. It returns
// false without error effect when the article is already in flight in this
// process, when the queue is draining, or when another replica claimed the
// row first; all three are no-ops for the caller.
func (q *Queue) Enqueue(articleID string, params dify.ArticleInputs) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		log.Printf("queue: rejecting %s, queue is shutting down", articleID)
		return false
	}
	if _, ok := q.inflight[articleID]; ok {
		q.mu.Unlock()
		log.Printf("queue: article %s already in flight, ignoring duplicate submission", articleID)
		return false
	}
	q.inflight[articleID] = struct{}{}
	q.mu.Unlock()

	claimCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	claimed, err := q.opts.Store.ClaimQueuedArticle(claimCtx, articleID)
	cancel()
	if err != nil {
		q.remove(articleID)
		log.Printf("queue: claim failed for %s: %v", articleID, err)
		return false
	}
	if !claimed {
		q.remove(articleID)
		log.Printf("queue: article %s was not queued (claimed elsewhere or already processed)", articleID)
		return false
	}

	q.wg.Add(1)
	go q.run(articleID, params)
	return true
}

func (q *Queue) run(articleID string, params dify.ArticleInputs) {
	defer q.wg.Done()
	defer q.remove(articleID)

	q.sem <- struct{}{}
	defer func() { <-q.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
	defer cancel()

	outputs, err := q.opts.Generator.RunArticleWorkflow(ctx, params)
	if err != nil {
		q.fail(articleID, err)
		return
	}

	// The store write races only with manual status changes; the WHERE
	// status='processing' guard on the update keeps those wins visible.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer storeCancel()
	if err := q.opts.Store.CompleteArticleGeneration(storeCtx, articleID, outputs.GeneratedArticle, outputs.StructuredOutput, outputs.ContentAnalyst); err != nil {
		log.Printf("queue: persisting generated article %s failed: %v", articleID, err)
		q.fail(articleID, fmt.Errorf("persist generated content: %w", err))
		return
	}

	log.Printf("queue: article %s generated", articleID)
	if q.opts.OnFinished != nil {
		q.opts.OnFinished(articleID, nil)
	}
}

func (q *Queue) fail(articleID string, cause error) {
	content := "Generation failed: " + cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.opts.Store.FailArticleGeneration(ctx, articleID, content, cause.Error()); err != nil {
		log.Printf("queue: recording failure for %s failed: %v", articleID, err)
	}
	log.Printf("queue: article %s failed: %v", articleID, cause)
	if q.opts.OnFinished != nil {
		q.opts.OnFinished(articleID, cause)
	}
}

func (q *Queue) remove(articleID string) {
	q.mu.Lock()
	delete(q.inflight, articleID)
	q.mu.Unlock()
}

// Status reports this process's in-flight view. Diagnostics only; the
// DB-derived queue snapshot is authoritative across replicas.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.inflight))
	for id := range q.inflight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Status{Count: len(ids), ArticleIDs: ids}
}

// Resume re-enqueues rows a previous process left behind: stale processing
// rows are failed, queued rows are claimed again in FIFO order.
func (q *Queue) Resume(ctx context.Context) error {
	released, err := q.opts.Store.ReleaseStaleProcessing(ctx, time.Now().Add(-q.opts.StaleAfter))
	if err != nil {
		return fmt.Errorf("release stale processing: %w", err)
	}
	if released > 0 {
		log.Printf("queue: marked %d stale processing article(s) as failed", released)
	}

	if q.opts.LoadParams == nil {
		return nil
	}
	ids, err := q.opts.Store.QueuedArticleIDs(ctx)
	if err != nil {
		return fmt.Errorf("list queued articles: %w", err)
	}
	for _, id := range ids {
		params, err := q.opts.LoadParams(ctx, id)
		if err != nil {
			log.Printf("queue: cannot rebuild params for queued article %s: %v", id, err)
			continue
		}
		q.Enqueue(id, params)
	}
	return nil
}

// Shutdown stops intake and waits for in-flight generations until the
// context expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
