// Package revisions keeps a git repository per submission so every code
// change is recorded as a commit.
package revisions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"codecollab/api/internal/store"
)

// ErrNoHistory is returned when a submission has never been recorded.
var ErrNoHistory = errors.New("no revision history")

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Record writes code to the submission's working tree and commits it,
// initialising the repository on first use.
func (s *Service) Record(submissionID, author, code, language, message string) (store.CommitInfo, error) {
	lock := s.submissionLock(submissionID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(submissionID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	name := codeFileName(language)
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, name), []byte(code), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add %s: %w", name, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: authorEmail(author),
			When:  s.now(),
		},
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit code: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists commits newest first. limit <= 0 returns everything.
func (s *Service) History(submissionID string, limit int) ([]store.CommitInfo, error) {
	lock := s.submissionLock(submissionID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(submissionID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Remove deletes the submission's repository from disk.
func (s *Service) Remove(submissionID string) error {
	lock := s.submissionLock(submissionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(submissionID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(submissionID string) (*git.Repository, error) {
	path := s.repoPath(submissionID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(submissionID string) string {
	return filepath.Join(s.baseDir, filepath.Base(submissionID))
}

func (s *Service) submissionLock(submissionID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[submissionID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[submissionID] = lock
	return lock
}

var extensions = map[string]string{
	"python":     "py",
	"javascript": "js",
	"typescript": "ts",
	"go":         "go",
	"java":       "java",
	"rust":       "rs",
	"ruby":       "rb",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"csharp":     "cs",
	"kotlin":     "kt",
	"swift":      "swift",
	"php":        "php",
	"sql":        "sql",
	"shell":      "sh",
	"bash":       "sh",
}

func codeFileName(language string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(language))]; ok {
		return "main." + ext
	}
	return "main.txt"
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

// authorEmail keeps real addresses and fabricates a local one otherwise.
func authorEmail(author string) string {
	if strings.Contains(author, "@") {
		return author
	}
	return sanitizeEmail(author) + "@local.codecollab.dev"
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
