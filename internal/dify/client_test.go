package dify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunArticleWorkflowSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/run" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"status": "succeeded",
				"outputs": map[string]any{
					"generated_article": "# Hello\n\nBody text.",
					"structured_output": map[string]any{"images": []any{}},
					"content_analyst":   "Reads well for the target audience.",
				},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "flow4-token", "", time.Second)
	out, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{
		OutlineContent:     "## Outline",
		StyleProfileJSON:   `{"tone":"direct"}`,
		WritingPurpose:     "seo",
		TargetAudienceJSON: `{"name":"founders"}`,
		UserEmail:          "writer@example.com",
	})
	if err != nil {
		t.Fatalf("RunArticleWorkflow failed: %v", err)
	}
	if out.GeneratedArticle == "" {
		t.Error("expected generated article content")
	}
	if out.ContentAnalyst != "Reads well for the target audience." {
		t.Errorf("unexpected analyst note %q", out.ContentAnalyst)
	}
	if len(out.StructuredOutput) == 0 {
		t.Error("expected structured output to be carried through")
	}
	if gotAuth != "Bearer flow4-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["response_mode"] != "blocking" {
		t.Errorf("expected blocking mode, got %v", gotBody["response_mode"])
	}
	if gotBody["user"] != "writer@example.com" {
		t.Errorf("expected user email, got %v", gotBody["user"])
	}
}

func TestRunArticleWorkflowHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "token", "", time.Second)
	_, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{WritingPurpose: "seo"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestRunArticleWorkflowMissingOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"status": "succeeded", "outputs": map[string]any{}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "token", "", time.Second)
	_, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{})
	if !errors.Is(err, ErrBadShape) {
		t.Errorf("expected ErrBadShape, got %v", err)
	}
}

func TestRunArticleWorkflowFailedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"status": "failed", "error": "model overloaded"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "token", "", time.Second)
	_, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected workflow error detail, got %v", err)
	}
}

func TestRunArticleWorkflowNotConfigured(t *testing.T) {
	client := New("", "", "", time.Second)
	_, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRunImageWorkflowAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/workflows/run", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer flow6-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"status":  "succeeded",
				"outputs": map[string]any{"image_url": server.URL + "/files/tmp-123.png"},
			},
		})
	})
	mux.HandleFunc("/files/tmp-123.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	client := New(server.URL, "", "flow6-token", time.Second)
	out, err := client.RunImageWorkflow(context.Background(), "sunset over water", "writer@example.com")
	if err != nil {
		t.Fatalf("RunImageWorkflow failed: %v", err)
	}
	data, err := client.DownloadFile(context.Background(), out.FileURL)
	if err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if len(data) != 4 {
		t.Errorf("expected 4 bytes, got %d", len(data))
	}
}

func TestWorkflowTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := New(server.URL, "token", "", 20*time.Millisecond)
	_, err := client.RunArticleWorkflow(context.Background(), ArticleInputs{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
