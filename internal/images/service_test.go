package images

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/store"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]store.ImageGenerationJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]store.ImageGenerationJob)}
}

func (f *fakeJobStore) InsertImageJob(_ context.Context, job store.ImageGenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetImageJob(_ context.Context, jobID string) (store.ImageGenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return store.ImageGenerationJob{}, errors.New("not found")
	}
	return job, nil
}

func (f *fakeJobStore) UpdateImageJobStatus(_ context.Context, jobID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	job.Status = status
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobStore) CompleteImageJob(_ context.Context, jobID, imageBase64, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	job.Status = StatusSucceeded
	job.ImageBase64 = imageBase64
	job.ObjectKey = objectKey
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobStore) FailImageJob(_ context.Context, jobID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	job.Status = StatusFailed
	job.ErrorMessage = message
	f.jobs[jobID] = job
	return nil
}

type fakeImageGenerator struct {
	runErr      error
	downloadErr error
	data        []byte
}

func (g *fakeImageGenerator) RunImageWorkflow(context.Context, string, string) (dify.ImageOutputs, error) {
	if g.runErr != nil {
		return dify.ImageOutputs{}, g.runErr
	}
	return dify.ImageOutputs{FileURL: "https://files.example.com/tmp/abc.png"}, nil
}

func (g *fakeImageGenerator) DownloadFile(context.Context, string) ([]byte, error) {
	if g.downloadErr != nil {
		return nil, g.downloadErr
	}
	return g.data, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeObjects) PutImage(_ context.Context, key string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func settle(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for image job")
		return nil
	}
}

func TestTriggerHappyPath(t *testing.T) {
	jobStore := newFakeJobStore()
	gen := &fakeImageGenerator{data: []byte{0x89, 'P', 'N', 'G'}}
	objects := &fakeObjects{}
	finished := make(chan error, 1)
	svc := NewService(Options{
		Store:      jobStore,
		Generator:  gen,
		Objects:    objects,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	job, err := svc.Trigger(context.Background(), "team_1", "usr_1", "art_1", "a red bicycle", "[IMAGE_1]", "user@example.com")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != StatusTriggering {
		t.Errorf("expected initial status %q, got %q", StatusTriggering, job.Status)
	}

	if err := settle(t, finished); err != nil {
		t.Fatalf("job failed: %v", err)
	}

	stored, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Errorf("expected status %q, got %q", StatusSucceeded, stored.Status)
	}
	want := base64.StdEncoding.EncodeToString(gen.data)
	if stored.ImageBase64 != want {
		t.Error("stored base64 payload does not match generated bytes")
	}
	if stored.ObjectKey == "" {
		t.Error("expected object key to be recorded")
	}
	objects.mu.Lock()
	defer objects.mu.Unlock()
	if len(objects.objects) != 1 {
		t.Errorf("expected one uploaded object, got %d", len(objects.objects))
	}
}

func TestTriggerWorkflowFailure(t *testing.T) {
	jobStore := newFakeJobStore()
	gen := &fakeImageGenerator{runErr: errors.New("workflow returned HTTP 500")}
	finished := make(chan error, 1)
	svc := NewService(Options{
		Store:      jobStore,
		Generator:  gen,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	job, err := svc.Trigger(context.Background(), "team_1", "usr_1", "", "prompt", "", "user@example.com")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if err := settle(t, finished); err == nil {
		t.Fatal("expected job failure")
	}

	stored, _ := svc.GetJob(context.Background(), job.ID)
	if stored.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("expected error message recorded on the job")
	}
}

func TestTriggerDownloadFailure(t *testing.T) {
	jobStore := newFakeJobStore()
	gen := &fakeImageGenerator{downloadErr: errors.New("expired download link")}
	finished := make(chan error, 1)
	svc := NewService(Options{
		Store:      jobStore,
		Generator:  gen,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	job, _ := svc.Trigger(context.Background(), "team_1", "usr_1", "", "prompt", "", "user@example.com")
	if err := settle(t, finished); err == nil {
		t.Fatal("expected job failure")
	}

	stored, _ := svc.GetJob(context.Background(), job.ID)
	if stored.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, stored.Status)
	}
}

func TestTriggerSucceedsWhenObjectUploadFails(t *testing.T) {
	jobStore := newFakeJobStore()
	gen := &fakeImageGenerator{data: []byte("img")}
	objects := &fakeObjects{err: errors.New("bucket unavailable")}
	finished := make(chan error, 1)
	svc := NewService(Options{
		Store:      jobStore,
		Generator:  gen,
		Objects:    objects,
		OnFinished: func(_ string, err error) { finished <- err },
	})

	job, _ := svc.Trigger(context.Background(), "team_1", "usr_1", "", "prompt", "", "user@example.com")
	if err := settle(t, finished); err != nil {
		t.Fatalf("upload failure must not fail the job: %v", err)
	}

	stored, _ := svc.GetJob(context.Background(), job.ID)
	if stored.Status != StatusSucceeded {
		t.Errorf("expected status %q, got %q", StatusSucceeded, stored.Status)
	}
	if stored.ObjectKey != "" {
		t.Error("object key must stay empty when the upload failed")
	}
}

func TestTriggerRejectsEmptyPrompt(t *testing.T) {
	svc := NewService(Options{Store: newFakeJobStore(), Generator: &fakeImageGenerator{}})
	if _, err := svc.Trigger(context.Background(), "team_1", "usr_1", "", "", "", ""); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
