package capability

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lia/internal/domain"
	"lia/internal/permission"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubCapability struct {
	name string
	desc string
	fn   func(ctx context.Context, task string) domain.CapabilityResult
}

func (s *stubCapability) Name() string        { return s.name }
func (s *stubCapability) Description() string { return s.desc }
func (s *stubCapability) Execute(ctx context.Context, task string) domain.CapabilityResult {
	if s.fn != nil {
		return s.fn(ctx, task)
	}
	return domain.Ok("stub: " + task)
}

// --- Registry ---

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&stubCapability{name: "echo", desc: "echoes tasks"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := r.Execute(context.Background(), "echo", "hello")
	if !res.Success || res.Message != "stub: hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistry_RejectsEmptyAndDuplicateNames(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&stubCapability{name: "  "}); err == nil {
		t.Fatal("empty name must be rejected")
	}
	if err := r.Register(&stubCapability{name: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&stubCapability{name: "dup"}); err == nil {
		t.Fatal("duplicate name must be rejected")
	}
}

func TestRegistry_UnknownCapabilityFailsAsData(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&stubCapability{name: "file"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := r.Execute(context.Background(), "nope", "anything")
	if res.Success {
		t.Fatal("unknown capability cannot succeed")
	}
	if !strings.Contains(res.Message, "unknown capability") || !strings.Contains(res.Message, "file") {
		t.Fatalf("message must name the miss and the roster, got %q", res.Message)
	}
}

func TestRegistry_RosterIsSortedOneLinePerCapability(t *testing.T) {
	r := NewRegistry(testLogger())
	for _, name := range []string{"net", "file", "git"} {
		if err := r.Register(&stubCapability{name: name, desc: name + " things"}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	roster := r.Roster()
	lines := strings.Split(strings.TrimSpace(roster), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 roster lines, got %d: %q", len(lines), roster)
	}
	if !strings.HasPrefix(lines[0], "- file:") || !strings.HasPrefix(lines[2], "- net:") {
		t.Fatalf("roster must be sorted by name: %q", roster)
	}
}

// --- Keyword matching ---

func TestMatchTool_PicksHighestScore(t *testing.T) {
	tools := []tool{
		{name: "a", keywords: []string{"disk", "storage"}},
		{name: "b", keywords: []string{"disk", "storage", "space"}},
	}
	got := matchTool("how much disk storage space is left", tools)
	if got == nil || got.name != "b" {
		t.Fatalf("expected tool b, got %+v", got)
	}
}

func TestMatchTool_NoKeywordsNoMatch(t *testing.T) {
	tools := []tool{{name: "a", keywords: []string{"ping"}}}
	if got := matchTool("completely unrelated", tools); got != nil {
		t.Fatalf("expected no match, got %q", got.name)
	}
}

func TestExtractArg(t *testing.T) {
	if got := extractArg("ping example.com please", `ping\s+(\S+)`, "google.com"); got != "example.com" {
		t.Fatalf("got %q", got)
	}
	if got := extractArg("do something else", `ping\s+(\S+)`, "google.com"); got != "google.com" {
		t.Fatalf("fallback not used: %q", got)
	}
}

func TestShQuote(t *testing.T) {
	if got := shQuote("it's here"); got != `'it'\''s here'` {
		t.Fatalf("got %q", got)
	}
}

// --- File capability ---

func newTestFile(t *testing.T, root string) *File {
	t.Helper()
	scope := permission.NewScope(permission.Config{
		AllowedPaths: []string{root},
		Capabilities: map[string][]domain.Operation{
			"file": {domain.OpRead, domain.OpWrite, domain.OpExecute},
		},
		Logger: testLogger(),
	})
	return NewFile(FileConfig{Scope: scope, Logger: testLogger()})
}

func TestFile_ListDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	f := newTestFile(t, root)

	res := f.Execute(context.Background(), "list the files in "+root)
	if !res.Success {
		t.Fatalf("list failed: %s", res.Message)
	}
	if !strings.Contains(res.Message, "a.txt") || !strings.Contains(res.Message, "sub/") {
		t.Fatalf("listing incomplete: %q", res.Message)
	}
	if !strings.Contains(res.Message, "(1 folders, 1 files)") {
		t.Fatalf("missing summary line: %q", res.Message)
	}
}

func TestFile_ListDeniedOutsideScope(t *testing.T) {
	f := newTestFile(t, t.TempDir())

	res := f.Execute(context.Background(), "list the files in /etc")
	if res.Success {
		t.Fatal("system path must be denied")
	}
	if !strings.Contains(res.Message, "denied") {
		t.Fatalf("expected denial message, got %q", res.Message)
	}
}

func TestFile_CreateDirectory(t *testing.T) {
	root := t.TempDir()
	f := newTestFile(t, root)
	target := filepath.Join(root, "newdir")

	res := f.Execute(context.Background(), "create folder named "+target)
	if !res.Success {
		t.Fatalf("mkdir failed: %s", res.Message)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestFile_MoveFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	dest := filepath.Join(root, "dest.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newTestFile(t, root)

	res := f.Execute(context.Background(), "move "+src+" to "+dest)
	if !res.Success {
		t.Fatalf("move failed: %s", res.Message)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source must be gone after move")
	}
}

func TestFile_InfoMissingFile(t *testing.T) {
	root := t.TempDir()
	f := newTestFile(t, root)

	res := f.Execute(context.Background(), "info of "+filepath.Join(root, "ghost.txt"))
	if res.Success {
		t.Fatal("missing file cannot succeed")
	}
}

func TestFile_NoToolMatch(t *testing.T) {
	f := newTestFile(t, t.TempDir())

	res := f.Execute(context.Background(), "compile the kernel")
	if res.Success {
		t.Fatal("unmatched task cannot succeed")
	}
	if !strings.Contains(res.Message, "no tool matches") {
		t.Fatalf("expected no-match message, got %q", res.Message)
	}
}
