package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/gitrepo"
	"github.com/KarryViber/Neolish-sub001/internal/lifecycle"
	"github.com/KarryViber/Neolish-sub001/internal/search"
	"github.com/KarryViber/Neolish-sub001/internal/store"
	"github.com/KarryViber/Neolish-sub001/internal/util"
)

// SubmitArticlesInput is the batch-generation request body.
type SubmitArticlesInput struct {
	OutlineID            string   `json:"outlineId"`
	TeamID               string   `json:"teamId"`
	TargetAudienceIDs    []string `json:"targetAudienceIds"`
	TargetAudience       string   `json:"targetAudience"`
	PredefinedPurposeIDs []string `json:"predefinedPurposeIds"`
	CustomPurposeTexts   []string `json:"customPurposeTexts"`
}

type UpdateArticleInput struct {
	Title             string          `json:"title"`
	Content           string          `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	AnalystNotes      string          `json:"analystNotes"`
}

const maxTitleAttempts = 1000

func (s *Service) requireTeamMember(ctx context.Context, teamID, userID string) error {
	_, err := s.store.TeamRole(ctx, teamID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusForbidden, "NOT_TEAM_MEMBER", "You are not a member of this team", nil)
	}
	return err
}

// SubmitArticles creates one queued article per unique writing purpose and
// hands each row to the generation queue. Per-purpose failures are collected
// instead of aborting the batch; the call fails outright only when nothing
// could be queued.
func (s *Service) SubmitArticles(ctx context.Context, session Session, input SubmitArticlesInput) (map[string]any, error) {
	if strings.TrimSpace(input.OutlineID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "outlineId is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	if !s.cfg.DifyConfigured() {
		return nil, domainError(http.StatusInternalServerError, "DIFY_NOT_CONFIGURED", "Article generation is not configured", nil)
	}
	if s.queue == nil {
		return nil, domainError(http.StatusInternalServerError, "QUEUE_UNAVAILABLE", "Generation queue is not running", nil)
	}

	outline, err := s.store.GetOutline(ctx, input.OutlineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Outline not found.", nil)
	}
	if err != nil {
		return nil, err
	}

	styleProfileJSON := ""
	if outline.StyleProfileID != "" {
		profile, err := s.store.GetStyleProfile(ctx, outline.StyleProfileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Style profile not found.", nil)
		}
		if err != nil {
			return nil, err
		}
		styleProfileJSON = string(profile.Profile)
	}

	audienceJSON, err := s.resolveAudiences(ctx, input.TargetAudienceIDs, input.TargetAudience)
	if err != nil {
		return nil, err
	}

	purposes, processingErrors := s.resolvePurposes(ctx, input.PredefinedPurposeIDs, input.CustomPurposeTexts)
	if len(purposes) == 0 && len(processingErrors) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one writing purpose is required", nil)
	}

	queuedArticles := make([]map[string]any, 0, len(purposes))
	for _, purpose := range purposes {
		title, err := s.uniqueTitle(ctx, input.TeamID, articleTitle(outline.Title, purpose.label))
		if err != nil {
			processingErrors = append(processingErrors, fmt.Sprintf("purpose %q: %v", purpose.label, err))
			continue
		}

		article := store.Article{
			ID:                util.NewID("art"),
			TeamID:            input.TeamID,
			UserID:            session.UserID,
			OutlineID:         outline.ID,
			StyleProfileID:    outline.StyleProfileID,
			Title:             title,
			Status:            string(lifecycle.StatusQueued),
			WritingPurpose:    []string{purpose.text},
			TargetAudienceIDs: input.TargetAudienceIDs,
		}
		if err := s.store.InsertArticle(ctx, article); err != nil {
			processingErrors = append(processingErrors, fmt.Sprintf("purpose %q: %v", purpose.label, err))
			continue
		}

		if s.git != nil {
			if err := s.git.EnsureArticleRepo(article.ID, gitrepo.Content{
				Title:  title,
				Status: article.Status,
			}, session.UserName); err != nil {
				log.Printf("app: cannot create revision repo for article %s: %v", article.ID, err)
			}
		}

		s.queue.Enqueue(article.ID, dify.ArticleInputs{
			OutlineContent:     outline.Content,
			StyleProfileJSON:   styleProfileJSON,
			WritingPurpose:     purpose.text,
			TargetAudienceJSON: audienceJSON,
			UserEmail:          session.Email,
		})

		queuedArticles = append(queuedArticles, map[string]any{
			"id":      article.ID,
			"title":   title,
			"purpose": purpose.text,
			"status":  article.Status,
		})
	}

	if len(queuedArticles) == 0 {
		return nil, domainError(http.StatusInternalServerError, "QUEUE_FAILED", "No articles could be queued", processingErrors)
	}

	snapshot, err := s.store.QueueSnapshot(ctx, input.TeamID)
	if err != nil {
		log.Printf("app: queue snapshot after submit failed: %v", err)
		snapshot = store.QueueSnapshot{}
	}

	return map[string]any{
		"message":          fmt.Sprintf("%d article(s) queued for generation", len(queuedArticles)),
		"queuedArticles":   queuedArticles,
		"queueStatus":      snapshot,
		"processingErrors": processingErrors,
	}, nil
}

type resolvedPurpose struct {
	text  string
	label string
}

// resolvePurposes collects purpose strings from predefined IDs and free-text
// entries, deduplicating while preserving submission order. Unknown IDs land
// in the returned error list rather than failing the batch.
func (s *Service) resolvePurposes(ctx context.Context, predefinedIDs, customTexts []string) ([]resolvedPurpose, []string) {
	var purposes []resolvedPurpose
	var processingErrors []string
	seen := make(map[string]struct{})

	add := func(text, label string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		purposes = append(purposes, resolvedPurpose{text: text, label: label})
	}

	for _, id := range predefinedIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		purpose, err := s.store.GetWritingPurpose(ctx, id)
		if err != nil {
			processingErrors = append(processingErrors, fmt.Sprintf("writing purpose %q not found", id))
			continue
		}
		text := purpose.PromptText
		if text == "" {
			text = purpose.Name
		}
		add(text, purpose.Name)
	}
	for _, text := range customTexts {
		add(text, truncateLabel(text))
	}
	return purposes, processingErrors
}

func (s *Service) resolveAudiences(ctx context.Context, audienceIDs []string, freeText string) (string, error) {
	if len(audienceIDs) == 0 {
		freeText = strings.TrimSpace(freeText)
		if freeText == "" {
			return "", nil
		}
		encoded, _ := json.Marshal([]map[string]any{{"name": freeText}})
		return string(encoded), nil
	}

	entries := make([]map[string]any, 0, len(audienceIDs))
	for _, id := range audienceIDs {
		audience, err := s.store.GetAudience(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", domainError(http.StatusNotFound, "NOT_FOUND", "Target audience not found.", nil)
		}
		if err != nil {
			return "", err
		}
		entry := map[string]any{"name": audience.Name}
		if len(audience.Attributes) > 0 {
			var attrs any
			if err := json.Unmarshal(audience.Attributes, &attrs); err == nil {
				entry["attributes"] = attrs
			}
		}
		entries = append(entries, entry)
	}
	encoded, _ := json.Marshal(entries)
	return string(encoded), nil
}

// uniqueTitle appends " (n)" until the title is free within the team.
func (s *Service) uniqueTitle(ctx context.Context, teamID, base string) (string, error) {
	title := base
	for attempt := 2; attempt <= maxTitleAttempts; attempt++ {
		exists, err := s.store.ArticleTitleExists(ctx, teamID, title)
		if err != nil {
			return "", err
		}
		if !exists {
			return title, nil
		}
		title = fmt.Sprintf("%s (%d)", base, attempt)
	}
	return "", fmt.Errorf("no available title after %d attempts", maxTitleAttempts)
}

func articleTitle(outlineTitle, purposeLabel string) string {
	if purposeLabel == "" {
		return outlineTitle
	}
	return outlineTitle + " - " + purposeLabel
}

func truncateLabel(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= 40 {
		return text
	}
	return string(runes[:40])
}

func (s *Service) ListArticles(ctx context.Context, session Session, filter store.ArticleFilter) (map[string]any, error) {
	if strings.TrimSpace(filter.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, filter.TeamID, session.UserID); err != nil {
		return nil, err
	}
	articles, total, err := s.store.ListArticles(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(articles))
	for _, article := range articles {
		items = append(items, articlePayload(article))
	}
	return map[string]any{
		"articles":   items,
		"totalCount": total,
	}, nil
}

func (s *Service) GetArticle(ctx context.Context, articleID string) (map[string]any, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	return articlePayload(article), nil
}

func (s *Service) UpdateArticle(ctx context.Context, articleID string, session Session, input UpdateArticleInput) (map[string]any, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article.Status == string(lifecycle.StatusQueued) || article.Status == string(lifecycle.StatusProcessing) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Article is still generating", nil)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = article.Title
	}
	content := input.Content
	if content == "" {
		content = article.Content
	}
	structured := input.StructuredContent
	if len(structured) == 0 {
		structured = article.StructuredContent
	}
	analystNotes := input.AnalystNotes
	if analystNotes == "" {
		analystNotes = article.AnalystNotes
	}

	if err := s.store.UpdateArticleContent(ctx, articleID, title, content, structured, analystNotes); err != nil {
		return nil, err
	}

	if s.git != nil {
		if _, err := s.git.CommitContent(articleID, gitrepo.Content{
			Title:             title,
			Markdown:          content,
			StructuredContent: structured,
			AnalystNotes:      analystNotes,
			Status:            article.Status,
		}, session.UserName, "Edit article content"); err != nil {
			log.Printf("app: revision commit for article %s failed: %v", articleID, err)
		}
	}

	article.Title = title
	article.Content = content
	article.StructuredContent = structured
	article.AnalystNotes = analystNotes
	s.indexArticle(article)

	return articlePayload(article), nil
}

// UpdateArticleStatus applies a user-requested lifecycle transition. Moves
// reserved for the generation pipeline are rejected here.
func (s *Service) UpdateArticleStatus(ctx context.Context, articleID, status string) (map[string]any, error) {
	to := lifecycle.Status(status)
	if !lifecycle.Valid(to) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown status %q", status), nil)
	}
	if !lifecycle.UserAssignable(to) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", fmt.Sprintf("status %q cannot be set directly", status), nil)
	}

	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	from := lifecycle.Status(article.Status)
	if lifecycle.QueueOwned(from) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Article is still generating", map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}
	if !lifecycle.CanTransition(from, to) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Status transition is not allowed", map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}

	if err := s.store.UpdateArticleStatus(ctx, articleID, string(to)); err != nil {
		return nil, err
	}

	article.Status = string(to)
	s.indexArticle(article)
	return articlePayload(article), nil
}

// RequeueArticle flips a failed generation back to queued and re-enqueues it.
func (s *Service) RequeueArticle(ctx context.Context, articleID string, session Session) (map[string]any, error) {
	if !s.cfg.DifyConfigured() {
		return nil, domainError(http.StatusInternalServerError, "DIFY_NOT_CONFIGURED", "Article generation is not configured", nil)
	}
	if s.queue == nil {
		return nil, domainError(http.StatusInternalServerError, "QUEUE_UNAVAILABLE", "Generation queue is not running", nil)
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	moved, err := s.store.RequeueArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Only failed generations can be requeued", map[string]any{
			"from": article.Status,
			"to":   string(lifecycle.StatusQueued),
		})
	}

	params, err := s.LoadGenerationParams(ctx, articleID)
	if err != nil {
		log.Printf("app: cannot rebuild generation params for %s: %v", articleID, err)
	} else {
		s.queue.Enqueue(articleID, params)
	}

	article.Status = string(lifecycle.StatusQueued)
	return articlePayload(article), nil
}

func (s *Service) DeleteArticle(ctx context.Context, articleID string) error {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, articleID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteArticle(articleID)
	}
	return nil
}

func (s *Service) QueueStatus(ctx context.Context, teamID string) (store.QueueSnapshot, error) {
	if strings.TrimSpace(teamID) == "" {
		return store.QueueSnapshot{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	return s.store.QueueSnapshot(ctx, teamID)
}

// LoadGenerationParams rebuilds workflow inputs from a stored article. The
// queue uses it to resume queued rows after a restart.
func (s *Service) LoadGenerationParams(ctx context.Context, articleID string) (dify.ArticleInputs, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return dify.ArticleInputs{}, err
	}
	outline, err := s.store.GetOutline(ctx, article.OutlineID)
	if err != nil {
		return dify.ArticleInputs{}, fmt.Errorf("load outline %s: %w", article.OutlineID, err)
	}

	styleProfileJSON := ""
	if article.StyleProfileID != "" {
		if profile, err := s.store.GetStyleProfile(ctx, article.StyleProfileID); err == nil {
			styleProfileJSON = string(profile.Profile)
		}
	}

	audienceJSON, err := s.resolveAudiences(ctx, article.TargetAudienceIDs, "")
	if err != nil {
		audienceJSON = ""
	}

	purpose := ""
	if len(article.WritingPurpose) > 0 {
		purpose = article.WritingPurpose[0]
	}

	userEmail := ""
	if user, err := s.store.GetUserByID(ctx, article.UserID); err == nil {
		userEmail = user.Email
	}

	return dify.ArticleInputs{
		OutlineContent:     outline.Content,
		StyleProfileJSON:   styleProfileJSON,
		WritingPurpose:     purpose,
		TargetAudienceJSON: audienceJSON,
		UserEmail:          userEmail,
	}, nil
}

// NotifyGenerationFinished runs after the queue finishes an article. It
// refreshes the search index and emails the submitting user when SMTP is
// configured.
func (s *Service) NotifyGenerationFinished(articleID string, genErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		log.Printf("app: finished article %s not found: %v", articleID, err)
		return
	}
	s.indexArticle(article)

	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	user, err := s.store.GetUserByID(ctx, article.UserID)
	if err != nil || user.Email == "" {
		return
	}
	errorDetail := ""
	if genErr != nil {
		errorDetail = genErr.Error()
	}
	articleURL := fmt.Sprintf("%s/articles/%s", strings.TrimRight(s.cfg.CORSOrigin, "/"), article.ID)
	if err := s.email.SendGenerationFinishedEmail(user.Email, user.DisplayName, article.Title, articleURL, errorDetail); err != nil {
		log.Printf("app: generation email for %s failed: %v", articleID, err)
	}
}

func (s *Service) indexArticle(article store.Article) {
	if s.search == nil {
		return
	}
	s.search.IndexArticle(search.ArticleRecord{
		ID:      article.ID,
		Title:   article.Title,
		Content: article.Content,
		TeamID:  article.TeamID,
		Status:  article.Status,
	})
}

func articlePayload(article store.Article) map[string]any {
	payload := map[string]any{
		"id":                article.ID,
		"teamId":            article.TeamID,
		"userId":            article.UserID,
		"outlineId":         article.OutlineID,
		"styleProfileId":    article.StyleProfileID,
		"title":             article.Title,
		"content":           article.Content,
		"analystNotes":      article.AnalystNotes,
		"status":            article.Status,
		"writingPurpose":    article.WritingPurpose,
		"targetAudienceIds": article.TargetAudienceIDs,
		"createdAt":         article.CreatedAt.Format(time.RFC3339),
		"updatedAt":         article.UpdatedAt.Format(time.RFC3339),
	}
	if len(article.StructuredContent) > 0 {
		var structured any
		if err := json.Unmarshal(article.StructuredContent, &structured); err == nil {
			payload["structuredContent"] = structured
		}
	}
	if article.ErrorMessage != "" {
		payload["errorMessage"] = article.ErrorMessage
	}
	if article.GenerationStartedAt != nil {
		payload["generationStartedAt"] = article.GenerationStartedAt.Format(time.RFC3339)
	}
	if article.GenerationFinishedAt != nil {
		payload["generationFinishedAt"] = article.GenerationFinishedAt.Format(time.RFC3339)
	}
	return payload
}
