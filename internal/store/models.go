package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Team struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Article struct {
	ID                string
	TeamID            string
	UserID            string
	OutlineID         string
	StyleProfileID    string
	Title             string
	Content           string
	StructuredContent json.RawMessage
	AnalystNotes      string
	Status            string
	WritingPurpose    []string
	TargetAudienceIDs []string
	ErrorMessage      string

	GenerationStartedAt  *time.Time
	GenerationFinishedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ArticleFilter narrows ListArticles. SearchTerm matches the title in SQL;
// Purpose and Audience are substring-matched against the JSON lists after
// scanning, mirroring the original read path.
type ArticleFilter struct {
	TeamID     string
	Status     string
	SearchTerm string
	Purpose    string
	Audience   string
	Page       int
	Limit      int
}

type Outline struct {
	ID             string
	TeamID         string
	UserID         string
	Title          string
	Content        string
	StyleProfileID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type StyleProfile struct {
	ID          string
	TeamID      string
	UserID      string
	Name        string
	Description string
	Profile     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Merchandise struct {
	ID          string
	TeamID      string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Audience struct {
	ID         string
	TeamID     string
	Name       string
	Attributes json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WritingPurpose is a predefined generation purpose users can pick by ID.
type WritingPurpose struct {
	ID         string
	Name       string
	PromptText string
}

type ImageGenerationJob struct {
	ID             string
	TeamID         string
	UserID         string
	ArticleID      string
	Status         string
	Prompt         string
	PlaceholderTag string
	ImageBase64    string
	ObjectKey      string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QueueSnapshot is the DB-derived queue view served by /api/articles/queue-status.
type QueueSnapshot struct {
	QueuedCount              int             `json:"queuedCount"`
	ProcessingCount          int             `json:"processingCount"`
	Positions                []QueuePosition `json:"positions"`
	AverageProcessingSeconds float64         `json:"averageProcessingSeconds"`
}

type QueuePosition struct {
	ArticleID string `json:"articleId"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
