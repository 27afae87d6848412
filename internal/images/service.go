// Package images runs image generation jobs against the workflow engine.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/store"
	"github.com/KarryViber/Neolish-sub001/internal/util"
)

// Job statuses. A job starts in StatusTriggering while the workflow call is
// made, moves to StatusProcessing once the engine accepted it, and lands in
// StatusSucceeded or StatusFailed.
const (
	StatusTriggering = "triggering_dify"
	StatusProcessing = "processing_image"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

type JobStore interface {
	InsertImageJob(ctx context.Context, job store.ImageGenerationJob) error
	GetImageJob(ctx context.Context, jobID string) (store.ImageGenerationJob, error)
	UpdateImageJobStatus(ctx context.Context, jobID, status string) error
	CompleteImageJob(ctx context.Context, jobID, imageBase64, objectKey string) error
	FailImageJob(ctx context.Context, jobID, message string) error
}

type ImageGenerator interface {
	RunImageWorkflow(ctx context.Context, prompt, userEmail string) (dify.ImageOutputs, error)
	DownloadFile(ctx context.Context, fileURL string) ([]byte, error)
}

// ObjectStore persists generated image bytes. Optional; when absent the
// base64 payload on the job row is the only copy.
type ObjectStore interface {
	PutImage(ctx context.Context, objectKey string, data []byte) error
}

type Options struct {
	Store     JobStore
	Generator ImageGenerator
	Objects   ObjectStore
	Timeout   time.Duration

	// OnFinished is called after each job settles, used by tests and the
	// notification hook.
	OnFinished func(jobID string, err error)
}

type Service struct {
	opts Options
	wg   sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Service{opts: opts}
}

// Trigger creates a job row and starts the workflow in the background. The
// returned job is in StatusTriggering; callers poll GetJob for progress.
func (s *Service) Trigger(ctx context.Context, teamID, userID, articleID, prompt, placeholderTag, userEmail string) (store.ImageGenerationJob, error) {
	if prompt == "" {
		return store.ImageGenerationJob{}, fmt.Errorf("prompt is required")
	}

	job := store.ImageGenerationJob{
		ID:             util.NewID("img"),
		TeamID:         teamID,
		UserID:         userID,
		ArticleID:      articleID,
		Status:         StatusTriggering,
		Prompt:         prompt,
		PlaceholderTag: placeholderTag,
	}
	if err := s.opts.Store.InsertImageJob(ctx, job); err != nil {
		return store.ImageGenerationJob{}, fmt.Errorf("insert image job: %w", err)
	}

	s.wg.Add(1)
	go s.run(job, userEmail)

	return job, nil
}

// GetJob returns the current job row.
func (s *Service) GetJob(ctx context.Context, jobID string) (store.ImageGenerationJob, error) {
	return s.opts.Store.GetImageJob(ctx, jobID)
}

func (s *Service) run(job store.ImageGenerationJob, userEmail string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	out, err := s.opts.Generator.RunImageWorkflow(ctx, job.Prompt, userEmail)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return
	}

	if err := s.opts.Store.UpdateImageJobStatus(ctx, job.ID, StatusProcessing); err != nil {
		log.Printf("image job %s: mark processing: %v", job.ID, err)
	}

	data, err := s.opts.Generator.DownloadFile(ctx, out.FileURL)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Errorf("download generated image: %w", err))
		return
	}

	objectKey := ""
	if s.opts.Objects != nil {
		objectKey = "images/" + job.TeamID + "/" + job.ID + ".png"
		if err := s.opts.Objects.PutImage(ctx, objectKey, data); err != nil {
			// The base64 copy on the row still serves the client.
			log.Printf("image job %s: object upload failed: %v", job.ID, err)
			objectKey = ""
		}
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if err := s.opts.Store.CompleteImageJob(ctx, job.ID, encoded, objectKey); err != nil {
		s.fail(ctx, job.ID, fmt.Errorf("persist generated image: %w", err))
		return
	}

	if s.opts.OnFinished != nil {
		s.opts.OnFinished(job.ID, nil)
	}
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) {
	log.Printf("image job %s: %v", jobID, cause)
	if err := s.opts.Store.FailImageJob(ctx, jobID, cause.Error()); err != nil {
		log.Printf("image job %s: record failure: %v", jobID, err)
	}
	if s.opts.OnFinished != nil {
		s.opts.OnFinished(jobID, cause)
	}
}

// Wait blocks until all in-flight jobs settle or the context expires.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
