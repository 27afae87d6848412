// Package dify is an HTTP client for the Dify workflow engine. Article and
// image generation each run as a separate workflow app with its own token.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotConfigured = errors.New("dify: endpoint or token not configured")
	// ErrBadShape reports a 2xx response without the expected outputs.
	ErrBadShape = errors.New("dify: unexpected response shape")
)

type Client struct {
	endpoint     string
	articleToken string
	imageToken   string
	httpClient   *http.Client
}

// New creates a client. timeout bounds each workflow call end to end; the
// article workflow routinely runs for minutes, so callers pass the configured
// generation timeout (5 minutes by default).
func New(endpoint, articleToken, imageToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		articleToken: articleToken,
		imageToken:   imageToken,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ArticleInputs is the payload for the article generation workflow.
type ArticleInputs struct {
	OutlineContent     string
	StyleProfileJSON   string
	WritingPurpose     string
	TargetAudienceJSON string
	UserEmail          string
}

// ArticleOutputs is what a succeeded article workflow yields.
type ArticleOutputs struct {
	GeneratedArticle string
	StructuredOutput json.RawMessage
	ContentAnalyst   string
}

type workflowResponse struct {
	Data struct {
		ID      string                     `json:"id"`
		Status  string                     `json:"status"`
		Error   string                     `json:"error"`
		Outputs map[string]json.RawMessage `json:"outputs"`
	} `json:"data"`
}

// RunArticleWorkflow executes the article generation flow in blocking mode.
func (c *Client) RunArticleWorkflow(ctx context.Context, in ArticleInputs) (ArticleOutputs, error) {
	if c.endpoint == "" || c.articleToken == "" {
		return ArticleOutputs{}, ErrNotConfigured
	}

	inputs := map[string]any{
		"outline_content": in.OutlineContent,
		"style_profile":   in.StyleProfileJSON,
		"writing_purpose": in.WritingPurpose,
		"target_audience": in.TargetAudienceJSON,
	}
	resp, err := c.runWorkflow(ctx, c.articleToken, inputs, in.UserEmail)
	if err != nil {
		return ArticleOutputs{}, err
	}

	raw, ok := resp.Data.Outputs["generated_article"]
	if !ok {
		return ArticleOutputs{}, fmt.Errorf("%w: missing generated_article", ErrBadShape)
	}
	var article string
	if err := json.Unmarshal(raw, &article); err != nil || article == "" {
		return ArticleOutputs{}, fmt.Errorf("%w: generated_article is not a string", ErrBadShape)
	}

	out := ArticleOutputs{GeneratedArticle: article}
	if structured, ok := resp.Data.Outputs["structured_output"]; ok {
		out.StructuredOutput = structured
	}
	if analyst, ok := resp.Data.Outputs["content_analyst"]; ok {
		var note string
		if err := json.Unmarshal(analyst, &note); err == nil {
			out.ContentAnalyst = note
		}
	}
	return out, nil
}

// ImageOutputs is what a succeeded image workflow yields. The file URL points
// at a temporary download the caller must fetch before it expires.
type ImageOutputs struct {
	FileURL string
}

// RunImageWorkflow executes the image generation flow in blocking mode.
func (c *Client) RunImageWorkflow(ctx context.Context, prompt, userEmail string) (ImageOutputs, error) {
	if c.endpoint == "" || c.imageToken == "" {
		return ImageOutputs{}, ErrNotConfigured
	}

	resp, err := c.runWorkflow(ctx, c.imageToken, map[string]any{"prompt": prompt}, userEmail)
	if err != nil {
		return ImageOutputs{}, err
	}

	raw, ok := resp.Data.Outputs["image_url"]
	if !ok {
		return ImageOutputs{}, fmt.Errorf("%w: missing image_url", ErrBadShape)
	}
	var fileURL string
	if err := json.Unmarshal(raw, &fileURL); err != nil || fileURL == "" {
		return ImageOutputs{}, fmt.Errorf("%w: image_url is not a string", ErrBadShape)
	}
	return ImageOutputs{FileURL: fileURL}, nil
}

func (c *Client) runWorkflow(ctx context.Context, token string, inputs map[string]any, user string) (*workflowResponse, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":        inputs,
		"response_mode": "blocking",
		"user":          user,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal workflow request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call workflow: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read workflow response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("workflow returned HTTP %d: %s", resp.StatusCode, truncate(string(payload), 256))
	}

	var parsed workflowResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadShape, err)
	}
	if parsed.Data.Status != "succeeded" {
		detail := parsed.Data.Error
		if detail == "" {
			detail = parsed.Data.Status
		}
		return nil, fmt.Errorf("workflow did not succeed: %s", detail)
	}
	return &parsed, nil
}

// DownloadFile fetches a temporary file produced by a workflow run.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	return data, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
