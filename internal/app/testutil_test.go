package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/authpw"
	"github.com/KarryViber/Neolish-sub001/internal/config"
	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/queue"
	"github.com/KarryViber/Neolish-sub001/internal/store"
	"github.com/KarryViber/Neolish-sub001/internal/util"
)

type refreshRecord struct {
	user      store.User
	expiresAt time.Time
	revoked   bool
}

// fakeStore is an in-memory stand-in for the Postgres store. It also serves
// as the refresh-session store and the auth user store.
type fakeStore struct {
	mu sync.Mutex

	users        map[string]store.User
	usersByEmail map[string]string
	verifyTokens map[string]string
	resets       map[string]string
	resetsUsed   map[string]bool

	memberships map[string]string // teamID + "|" + userID -> role
	teams       map[string]store.Team

	articles     map[string]store.Article
	articleOrder []string

	outlines      map[string]store.Outline
	styleProfiles map[string]store.StyleProfile
	merchandise   map[string]store.Merchandise
	audiences     map[string]store.Audience
	purposes      map[string]store.WritingPurpose

	refresh    map[string]refreshRecord
	revokedJTI map[string]bool

	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]store.User),
		usersByEmail:  make(map[string]string),
		verifyTokens:  make(map[string]string),
		resets:        make(map[string]string),
		resetsUsed:    make(map[string]bool),
		memberships:   make(map[string]string),
		teams:         make(map[string]store.Team),
		articles:      make(map[string]store.Article),
		outlines:      make(map[string]store.Outline),
		styleProfiles: make(map[string]store.StyleProfile),
		merchandise:   make(map[string]store.Merchandise),
		audiences:     make(map[string]store.Audience),
		purposes:      make(map[string]store.WritingPurpose),
		refresh:       make(map[string]refreshRecord),
		revokedJTI:    make(map[string]bool),
	}
}

// Users and auth

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.usersByEmail[strings.ToLower(user.Email)] = user.ID
	if user.VerificationToken != "" {
		f.verifyTokens[user.VerificationToken] = user.ID
	}
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	f.users[userID] = user
	f.verifyTokens[token] = userID
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.verifyTokens[token]
	if !ok {
		return errors.New("invalid or expired verification token")
	}
	user := f.users[userID]
	user.IsEmailVerified = true
	user.VerificationToken = ""
	f.users[userID] = user
	delete(f.verifyTokens, token)
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok || f.resetsUsed[token] {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetsUsed[token] = true
	return nil
}

// Teams

func (f *fakeStore) ListTeamsForUser(_ context.Context, userID string) ([]store.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var teams []store.Team
	for key := range f.memberships {
		teamID, member, _ := strings.Cut(key, "|")
		if member == userID {
			teams = append(teams, f.teams[teamID])
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

func (f *fakeStore) TeamRole(_ context.Context, teamID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.memberships[teamID+"|"+userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

// Refresh sessions and token revocation

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = refreshRecord{user: user, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.refresh[tokenHash]
	if !ok || record.revoked || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return record.user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := f.refresh[tokenHash]
	record.revoked = true
	f.refresh[tokenHash] = record
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTI[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTI[jti], nil
}

func (f *fakeStore) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// Articles

func (f *fakeStore) InsertArticle(_ context.Context, item store.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.articles[item.ID] = item
	f.articleOrder = append(f.articleOrder, item.ID)
	return nil
}

func (f *fakeStore) GetArticle(_ context.Context, articleID string) (store.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[articleID]
	if !ok {
		return store.Article{}, sql.ErrNoRows
	}
	return article, nil
}

func (f *fakeStore) ListArticles(_ context.Context, filter store.ArticleFilter) ([]store.Article, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Article
	for _, id := range f.articleOrder {
		article, ok := f.articles[id]
		if !ok {
			continue
		}
		if article.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && article.Status != filter.Status {
			continue
		}
		if filter.SearchTerm != "" && !strings.Contains(strings.ToLower(article.Title), strings.ToLower(filter.SearchTerm)) {
			continue
		}
		if filter.Purpose != "" && !anyContainsFold(article.WritingPurpose, filter.Purpose) {
			continue
		}
		if filter.Audience != "" && !anyContainsFold(article.TargetAudienceIDs, filter.Audience) {
			continue
		}
		items = append(items, article)
	}
	return items, len(items), nil
}

func anyContainsFold(values []string, substr string) bool {
	needle := strings.ToLower(substr)
	for _, value := range values {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func (f *fakeStore) ArticleTitleExists(_ context.Context, teamID, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, article := range f.articles {
		if article.TeamID == teamID && article.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateArticleStatus(_ context.Context, articleID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[articleID]
	if !ok {
		return sql.ErrNoRows
	}
	article.Status = status
	f.articles[articleID] = article
	return nil
}

func (f *fakeStore) RequeueArticle(_ context.Context, articleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[articleID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if article.Status != "generation_failed" {
		return false, nil
	}
	article.Status = "queued"
	f.articles[articleID] = article
	return true, nil
}

func (f *fakeStore) UpdateArticleContent(_ context.Context, articleID, title, content string, structured json.RawMessage, analystNotes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	article, ok := f.articles[articleID]
	if !ok {
		return sql.ErrNoRows
	}
	article.Title = title
	article.Content = content
	article.StructuredContent = structured
	article.AnalystNotes = analystNotes
	article.UpdatedAt = time.Now()
	f.articles[articleID] = article
	return nil
}

func (f *fakeStore) DeleteArticle(_ context.Context, articleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.articles, articleID)
	return nil
}

func (f *fakeStore) QueueSnapshot(_ context.Context, teamID string) (store.QueueSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := store.QueueSnapshot{Positions: []store.QueuePosition{}}
	position := 0
	for _, id := range f.articleOrder {
		article, ok := f.articles[id]
		if !ok || article.TeamID != teamID {
			continue
		}
		switch article.Status {
		case "queued":
			snapshot.QueuedCount++
			position++
			snapshot.Positions = append(snapshot.Positions, store.QueuePosition{
				ArticleID: article.ID,
				Title:     article.Title,
				Position:  position,
			})
		case "processing":
			snapshot.ProcessingCount++
		}
	}
	return snapshot, nil
}

// Outlines

func (f *fakeStore) InsertOutline(_ context.Context, item store.Outline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outlines[item.ID] = item
	return nil
}

func (f *fakeStore) GetOutline(_ context.Context, outlineID string) (store.Outline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outline, ok := f.outlines[outlineID]
	if !ok {
		return store.Outline{}, sql.ErrNoRows
	}
	return outline, nil
}

func (f *fakeStore) ListOutlines(_ context.Context, teamID string) ([]store.Outline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Outline
	for _, outline := range f.outlines {
		if outline.TeamID == teamID {
			items = append(items, outline)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateOutline(_ context.Context, outlineID, title, content, styleProfileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	outline, ok := f.outlines[outlineID]
	if !ok {
		return sql.ErrNoRows
	}
	outline.Title = title
	outline.Content = content
	outline.StyleProfileID = styleProfileID
	f.outlines[outlineID] = outline
	return nil
}

func (f *fakeStore) DeleteOutline(_ context.Context, outlineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.outlines, outlineID)
	return nil
}

// Style profiles

func (f *fakeStore) InsertStyleProfile(_ context.Context, item store.StyleProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styleProfiles[item.ID] = item
	return nil
}

func (f *fakeStore) GetStyleProfile(_ context.Context, profileID string) (store.StyleProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.styleProfiles[profileID]
	if !ok {
		return store.StyleProfile{}, sql.ErrNoRows
	}
	return profile, nil
}

func (f *fakeStore) ListStyleProfiles(_ context.Context, teamID string) ([]store.StyleProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.StyleProfile
	for _, profile := range f.styleProfiles {
		if profile.TeamID == teamID {
			items = append(items, profile)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateStyleProfile(_ context.Context, profileID, name, description string, profile json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.styleProfiles[profileID]
	if !ok {
		return sql.ErrNoRows
	}
	item.Name = name
	item.Description = description
	item.Profile = profile
	f.styleProfiles[profileID] = item
	return nil
}

func (f *fakeStore) DeleteStyleProfile(_ context.Context, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.styleProfiles, profileID)
	return nil
}

// Merchandise

func (f *fakeStore) InsertMerchandise(_ context.Context, item store.Merchandise) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merchandise[item.ID] = item
	return nil
}

func (f *fakeStore) GetMerchandise(_ context.Context, merchandiseID string) (store.Merchandise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.merchandise[merchandiseID]
	if !ok {
		return store.Merchandise{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListMerchandise(_ context.Context, teamID string) ([]store.Merchandise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Merchandise
	for _, item := range f.merchandise {
		if item.TeamID == teamID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateMerchandise(_ context.Context, merchandiseID, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.merchandise[merchandiseID]
	if !ok {
		return sql.ErrNoRows
	}
	item.Name = name
	item.Description = description
	f.merchandise[merchandiseID] = item
	return nil
}

func (f *fakeStore) DeleteMerchandise(_ context.Context, merchandiseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.merchandise, merchandiseID)
	return nil
}

// Audiences

func (f *fakeStore) InsertAudience(_ context.Context, item store.Audience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audiences[item.ID] = item
	return nil
}

func (f *fakeStore) GetAudience(_ context.Context, audienceID string) (store.Audience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	audience, ok := f.audiences[audienceID]
	if !ok {
		return store.Audience{}, sql.ErrNoRows
	}
	return audience, nil
}

func (f *fakeStore) ListAudiences(_ context.Context, teamID string) ([]store.Audience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.Audience
	for _, audience := range f.audiences {
		if audience.TeamID == teamID {
			items = append(items, audience)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) UpdateAudience(_ context.Context, audienceID, name string, attributes json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	audience, ok := f.audiences[audienceID]
	if !ok {
		return sql.ErrNoRows
	}
	audience.Name = name
	audience.Attributes = attributes
	f.audiences[audienceID] = audience
	return nil
}

func (f *fakeStore) DeleteAudience(_ context.Context, audienceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.audiences, audienceID)
	return nil
}

// Writing purposes

func (f *fakeStore) ListWritingPurposes(context.Context) ([]store.WritingPurpose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.WritingPurpose
	for _, purpose := range f.purposes {
		items = append(items, purpose)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) GetWritingPurpose(_ context.Context, purposeID string) (store.WritingPurpose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	purpose, ok := f.purposes[purposeID]
	if !ok {
		return store.WritingPurpose{}, sql.ErrNoRows
	}
	return purpose, nil
}

// fakeQueue records enqueued articles without running workflows.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	params   map[string]dify.ArticleInputs
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{params: make(map[string]dify.ArticleInputs)}
}

func (q *fakeQueue) Enqueue(articleID string, params dify.ArticleInputs) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, articleID)
	q.params[articleID] = params
	return true
}

func (q *fakeQueue) Status() queue.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Status{Count: len(q.enqueued), ArticleIDs: append([]string(nil), q.enqueued...)}
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

type testEnv struct {
	server  *HTTPServer
	service *Service
	store   *fakeStore
	queue   *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	fq := newFakeQueue()
	cfg := config.Config{
		JWTSecret:        "test-secret",
		AccessTTL:        time.Hour,
		RefreshTTL:       24 * time.Hour,
		CORSOrigin:       "*",
		DifyAPIEndpoint:  "http://dify.local",
		DifyArticleToken: "flow4-token",
		DifyImageToken:   "flow6-token",
	}
	svc := New(cfg, Options{
		Store:    fs,
		Sessions: fs,
		Queue:    fq,
		Auth:     authpw.NewService(fs),
	})
	return &testEnv{
		server:  NewHTTPServer(svc, "*"),
		service: svc,
		store:   fs,
		queue:   fq,
	}
}

// seedMember creates a verified user with a team membership and returns the
// user plus a bearer token.
func (e *testEnv) seedMember(t *testing.T, teamID, role string) (store.User, string) {
	t.Helper()
	user := store.User{
		ID:              util.NewID("usr"),
		DisplayName:     "Test User",
		Email:           util.NewID("u") + "@example.com",
		Role:            "editor",
		IsEmailVerified: true,
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	e.store.teams[teamID] = store.Team{ID: teamID, Name: "Team " + teamID, Slug: teamID}
	e.store.memberships[teamID+"|"+user.ID] = role

	session, err := e.service.CreateSession(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user, session.Token
}

func (e *testEnv) seedOutline(teamID string) store.Outline {
	outline := store.Outline{
		ID:      util.NewID("out"),
		TeamID:  teamID,
		Title:   "Spring Campaign",
		Content: "# Spring Campaign\n\n- intro\n- body",
	}
	e.store.outlines[outline.ID] = outline
	return outline
}

func articleFixture(id, teamID, status string) store.Article {
	return store.Article{
		ID:      id,
		TeamID:  teamID,
		UserID:  "usr_fixture",
		Title:   "Article " + id,
		Content: "Body of " + id,
		Status:  status,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
