package revisions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRecordAndHistoryNewestFirst(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.Record("sub-1", "a@example.com", "print('a')", "python", "Create submission")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(first.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", first.Hash)
	}
	second, err := svc.Record("sub-1", "a@example.com", "print('b')", "python", "Update code")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	history, err := svc.History("sub-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("expected newest first, got %+v", history)
	}
	if history[0].Message != "Update code" || history[0].Author != "a@example.com" {
		t.Fatalf("unexpected commit info %+v", history[0])
	}

	contents, err := os.ReadFile(filepath.Join(svc.baseDir, "sub-1", "main.py"))
	if err != nil {
		t.Fatalf("read working tree: %v", err)
	}
	if string(contents) != "print('b')" {
		t.Fatalf("unexpected working tree contents %q", contents)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	for i := 0; i < 4; i++ {
		if _, err := svc.Record("sub-1", "Avery", fmt.Sprintf("v%d", i), "go", fmt.Sprintf("rev %d", i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	history, err := svc.History("sub-1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Message != "rev 3" {
		t.Fatalf("unexpected limited history %+v", history)
	}
}

func TestHistoryWithoutRepo(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("missing", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("sub-1", "Avery", "x", "", "Create submission"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Remove("sub-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := svc.History("sub-1", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory after remove, got %v", err)
	}
}

func TestConcurrentRecordsAreSerialised(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("sub-1", "Avery", "seed", "go", "seed"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Record("sub-1", "Avery", fmt.Sprintf("v%d", i), "go", fmt.Sprintf("rev %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record() error = %v", err)
		}
	}

	history, err := svc.History("sub-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("expected 9 commits, got %d", len(history))
	}
}

func TestCodeFileName(t *testing.T) {
	tests := map[string]string{
		"python": "main.py",
		"Go":     "main.go",
		" rust ": "main.rs",
		"cobol":  "main.txt",
		"":       "main.txt",
	}
	for language, want := range tests {
		if got := codeFileName(language); got != want {
			t.Fatalf("codeFileName(%q) = %q, want %q", language, got, want)
		}
	}
}
