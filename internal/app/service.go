package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/auth"
	"github.com/KarryViber/Neolish-sub001/internal/authpw"
	"github.com/KarryViber/Neolish-sub001/internal/config"
	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/email"
	"github.com/KarryViber/Neolish-sub001/internal/export"
	"github.com/KarryViber/Neolish-sub001/internal/gitrepo"
	"github.com/KarryViber/Neolish-sub001/internal/queue"
	"github.com/KarryViber/Neolish-sub001/internal/rbac"
	"github.com/KarryViber/Neolish-sub001/internal/search"
	"github.com/KarryViber/Neolish-sub001/internal/store"
	"github.com/KarryViber/Neolish-sub001/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the application layer uses.
type dataStore interface {
	// Articles
	InsertArticle(ctx context.Context, item store.Article) error
	GetArticle(ctx context.Context, articleID string) (store.Article, error)
	ListArticles(ctx context.Context, filter store.ArticleFilter) ([]store.Article, int, error)
	ArticleTitleExists(ctx context.Context, teamID, title string) (bool, error)
	UpdateArticleStatus(ctx context.Context, articleID, status string) error
	RequeueArticle(ctx context.Context, articleID string) (bool, error)
	UpdateArticleContent(ctx context.Context, articleID, title, content string, structured json.RawMessage, analystNotes string) error
	DeleteArticle(ctx context.Context, articleID string) error
	QueueSnapshot(ctx context.Context, teamID string) (store.QueueSnapshot, error)

	// Outlines, style profiles, merchandise, audiences, purposes
	InsertOutline(ctx context.Context, item store.Outline) error
	GetOutline(ctx context.Context, outlineID string) (store.Outline, error)
	ListOutlines(ctx context.Context, teamID string) ([]store.Outline, error)
	UpdateOutline(ctx context.Context, outlineID, title, content, styleProfileID string) error
	DeleteOutline(ctx context.Context, outlineID string) error
	InsertStyleProfile(ctx context.Context, item store.StyleProfile) error
	GetStyleProfile(ctx context.Context, profileID string) (store.StyleProfile, error)
	ListStyleProfiles(ctx context.Context, teamID string) ([]store.StyleProfile, error)
	UpdateStyleProfile(ctx context.Context, profileID, name, description string, profile json.RawMessage) error
	DeleteStyleProfile(ctx context.Context, profileID string) error
	InsertMerchandise(ctx context.Context, item store.Merchandise) error
	GetMerchandise(ctx context.Context, merchandiseID string) (store.Merchandise, error)
	ListMerchandise(ctx context.Context, teamID string) ([]store.Merchandise, error)
	UpdateMerchandise(ctx context.Context, merchandiseID, name, description string) error
	DeleteMerchandise(ctx context.Context, merchandiseID string) error
	InsertAudience(ctx context.Context, item store.Audience) error
	GetAudience(ctx context.Context, audienceID string) (store.Audience, error)
	ListAudiences(ctx context.Context, teamID string) ([]store.Audience, error)
	UpdateAudience(ctx context.Context, audienceID, name string, attributes json.RawMessage) error
	DeleteAudience(ctx context.Context, audienceID string) error
	ListWritingPurposes(ctx context.Context) ([]store.WritingPurpose, error)
	GetWritingPurpose(ctx context.Context, purposeID string) (store.WritingPurpose, error)

	// Users, teams, tokens
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListTeamsForUser(ctx context.Context, userID string) ([]store.Team, error)
	TeamRole(ctx context.Context, teamID, userID string) (string, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Satisfied by the Redis store and,
// as the fallback, by the Postgres store.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type gitService interface {
	EnsureArticleRepo(articleID string, initial gitrepo.Content, author string) error
	CommitContent(articleID string, content gitrepo.Content, author, message string) (store.CommitInfo, error)
	History(articleID string, limit int) ([]store.CommitInfo, error)
	GetContentByHash(articleID, hash string) (gitrepo.Content, error)
}

type articleQueue interface {
	Enqueue(articleID string, params dify.ArticleInputs) bool
	Status() queue.Status
}

type imageService interface {
	Trigger(ctx context.Context, teamID, userID, articleID, prompt, placeholderTag, userEmail string) (store.ImageGenerationJob, error)
	GetJob(ctx context.Context, jobID string) (store.ImageGenerationJob, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexArticle(a search.ArticleRecord)
	IndexOutline(o search.OutlineRecord)
	IndexStyleProfile(p search.StyleProfileRecord)
	DeleteArticle(id string)
	DeleteOutline(id string)
	DeleteStyleProfile(id string)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Options wires the service's collaborators. Sessions falls back to Store
// when nil; Queue, Images, Search, Export, Auth, and Email may be nil when
// the corresponding backend is not configured.
type Options struct {
	Store    dataStore
	Sessions sessionStore
	Git      gitService
	Queue    articleQueue
	Images   imageService
	Search   searchIndex
	Export   exporter
	Auth     *authpw.Service
	Email    *email.Service
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	git      gitService
	queue    articleQueue
	images   imageService
	search   searchIndex
	export   exporter
	authpw   *authpw.Service
	email    *email.Service
}

func New(cfg config.Config, opts Options) *Service {
	sessions := opts.Sessions
	if sessions == nil {
		if fallback, ok := opts.Store.(sessionStore); ok {
			sessions = fallback
		}
	}
	return &Service{
		cfg:      cfg,
		store:    opts.Store,
		sessions: sessions,
		git:      opts.Git,
		queue:    opts.Queue,
		images:   opts.Images,
		search:   opts.Search,
		export:   opts.Export,
		authpw:   opts.Auth,
		email:    opts.Email,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) EmailService() *email.Service {
	return s.email
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// CreateSession issues an access/refresh pair for an already-authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ListTeams(ctx context.Context, userID string) ([]map[string]any, error) {
	teams, err := s.store.ListTeamsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		items = append(items, map[string]any{
			"id":   team.ID,
			"name": team.Name,
			"slug": team.Slug,
		})
	}
	return items, nil
}
