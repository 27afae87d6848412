// Package gitrepo keeps a per-article git repository holding the article
// body, so every save is a recoverable revision.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/KarryViber/Neolish-sub001/internal/store"
)

// Content is the article snapshot committed on every save.
type Content struct {
	Title             string          `json:"title"`
	Markdown          string          `json:"markdown"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	AnalystNotes      string          `json:"analystNotes,omitempty"`
	Status            string          `json:"status"`
}

// Service manages one bare-worktree repository per article. Each article
// has a single main branch; a per-article mutex serializes writers.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureArticleRepo initializes the repository for an article with a
// baseline commit. A no-op when the repo already exists.
func (s *Service) EnsureArticleRepo(articleID string, initial Content, author string) error {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(articleID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "article.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial content: %w", err)
	}
	if _, err := worktree.Add("article.json"); err != nil {
		return fmt.Errorf("git add initial content: %w", err)
	}
	hash, err := worktree.Commit("Import article baseline", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitContent writes a new revision of the article body.
func (s *Service) CommitContent(articleID string, content Content, author, message string) (store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "article.json"), append(payload, '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write article.json: %w", err)
	}

	if _, err := worktree.Add("article.json"); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}

	return toCommitInfo(commitObj), nil
}

// GetHeadContent returns the latest revision and its commit metadata.
func (s *Service) GetHeadContent(articleID string) (Content, store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}

	return content, toCommitInfo(commitObj), nil
}

// GetContentByHash returns the revision at a specific commit.
func (s *Service) GetContentByHash(articleID, hash string) (Content, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// History lists commits newest first, up to limit (0 = all).
func (s *Service) History(articleID string, limit int) ([]store.CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// HasChanges reports whether two snapshots differ.
func HasChanges(from, to Content) bool {
	if from.Title != to.Title ||
		from.Markdown != to.Markdown ||
		from.AnalystNotes != to.AnalystNotes ||
		from.Status != to.Status {
		return true
	}
	return !bytes.Equal(normalizeDoc(from.StructuredContent), normalizeDoc(to.StructuredContent))
}

func (s *Service) repoPath(articleID string) string {
	return filepath.Join(s.baseDir, articleID)
}

func (s *Service) articleLock(articleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[articleID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[articleID] = lock
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.neolish.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File("article.json")
	if err != nil {
		return Content{}, fmt.Errorf("load article.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func normalizeDoc(doc json.RawMessage) []byte {
	if len(doc) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
