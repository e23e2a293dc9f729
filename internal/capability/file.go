package capability

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lia/internal/domain"
	"lia/internal/permission"
)

const findResultCap = 100

// File provides filesystem operations inside the permission scope.
type File struct {
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type FileConfig struct {
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewFile(cfg FileConfig) *File {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &File{scope: cfg.Scope, logger: cfg.Logger}
	f.tools = []tool{
		{name: "list_directory", desc: "lists files in a directory",
			keywords: []string{"list", "show files", "ls", "dir", "what's in", "contents of"},
			run:      f.listDirectory},
		{name: "move_file", desc: "moves a file from source to destination",
			keywords: []string{"move", "mv", "rename", "relocate"},
			run:      f.moveFile},
		{name: "create_directory", desc: "creates a new directory",
			keywords: []string{"create dir", "mkdir", "create folder", "make folder", "new folder"},
			run:      f.createDirectory},
		{name: "find_files", desc: "finds files by name pattern",
			keywords: []string{"find", "search", "locate", "where is", "look for"},
			run:      f.findFiles},
		{name: "file_info", desc: "shows size, modified date, and type of a file",
			keywords: []string{"info", "size", "details", "about", "how big"},
			run:      f.fileInfo},
	}
	return f
}

func (f *File) Name() string { return "file" }

func (f *File) Description() string {
	return "file search, listing, moving, directory creation, file details"
}

func (f *File) Execute(ctx context.Context, task string) domain.CapabilityResult {
	f.logger.Info("file capability executing", "task", task)
	t := matchTool(task, f.tools)
	if t == nil {
		return noMatch(f.Name(), task, f.tools)
	}
	return t.run(ctx, task)
}

func (f *File) listDirectory(_ context.Context, task string) domain.CapabilityResult {
	path := extractArg(task, `(?:in|of|at|for)\s+["']?([^'"]+)["']?`, ".")
	if !f.scope.IsAllowed(path, domain.OpRead) {
		return domain.Fail("access denied: " + path)
	}

	resolved, err := f.scope.Resolve(path)
	if err != nil {
		return domain.Fail("cannot resolve path: " + err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return domain.Fail("cannot read directory: " + err.Error())
	}
	if len(entries) == 0 {
		return domain.Ok("directory is empty")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name()+"/")
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, fmt.Sprintf("%s (%s)", e.Name(), humanSize(size)))
	}
	lines := append(dirs, files...)
	lines = append(lines, fmt.Sprintf("(%d folders, %d files)", len(dirs), len(files)))
	return domain.Ok(strings.Join(lines, "\n"))
}

func (f *File) moveFile(_ context.Context, task string) domain.CapabilityResult {
	src := extractArg(task, `(?:move|mv|rename|relocate)\s+["']?(\S+?)["']?\s+(?:to|into)\s`, "")
	dest := extractArg(task, `(?:to|into)\s+["']?(\S+)["']?\s*$`, "")
	if src == "" || dest == "" {
		return domain.Fail("cannot determine source and destination (say: move <src> to <dest>)")
	}
	if !f.scope.IsAllowed(src, domain.OpRead) {
		return domain.Fail("cannot read: " + src)
	}
	if !f.scope.IsAllowed(dest, domain.OpWrite) {
		return domain.Fail("cannot write to: " + dest)
	}
	if !f.scope.CheckCapability(f.Name(), domain.OpWrite) {
		return domain.Fail("file capability has no write permission")
	}

	if err := os.Rename(src, dest); err != nil {
		return domain.Fail("move failed: " + err.Error())
	}
	return domain.Ok(fmt.Sprintf("moved %s to %s", src, dest))
}

func (f *File) createDirectory(_ context.Context, task string) domain.CapabilityResult {
	path := extractArg(task, `(?:named?|called?)\s+["']?([^'"]+)["']?`, "")
	if path == "" {
		fields := strings.Fields(task)
		if len(fields) > 0 {
			path = fields[len(fields)-1]
		}
	}
	if path == "" {
		return domain.Fail("cannot determine directory name")
	}
	if !f.scope.IsAllowed(path, domain.OpWrite) {
		return domain.Fail("cannot create directory at: " + path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return domain.Fail("mkdir failed: " + err.Error())
	}
	return domain.Ok("directory created: " + path)
}

func (f *File) findFiles(ctx context.Context, task string) domain.CapabilityResult {
	pattern := strings.ToLower(extractArg(task, `(?:find|search|locate)\s+(?:all\s+)?(?:files?\s+)?["']?(.+?)["']?\s*$`, "*"))
	root := "."
	if !f.scope.IsAllowed(root, domain.OpRead) {
		return domain.Fail("access denied: " + root)
	}

	var found []string
	capped := false
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if pattern != "*" && !strings.Contains(strings.ToLower(d.Name()), pattern) {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		found = append(found, fmt.Sprintf("  %s (%s)", path, humanSize(size)))
		if len(found) >= findResultCap {
			capped = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return domain.Fail("search aborted: " + err.Error())
	}
	if len(found) == 0 {
		return domain.Ok(fmt.Sprintf("no files matching %q found", pattern))
	}
	header := fmt.Sprintf("found %d matches:", len(found))
	if capped {
		header = fmt.Sprintf("found %d+ matches (capped):", findResultCap)
	}
	return domain.Ok(header + "\n" + strings.Join(found, "\n"))
}

func (f *File) fileInfo(_ context.Context, task string) domain.CapabilityResult {
	path := extractArg(task, `(?:info|details|about|size)\s+(?:of\s+)?["']?(.+?)["']?\s*$`, ".")
	if !f.scope.IsAllowed(path, domain.OpRead) {
		return domain.Fail("access denied: " + path)
	}
	resolved, err := f.scope.Resolve(path)
	if err != nil {
		return domain.Fail("cannot resolve path: " + err.Error())
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return domain.Fail("not found: " + path)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return domain.Ok(fmt.Sprintf("path: %s\ntype: %s\nsize: %s\nmodified: %s",
		resolved, kind, humanSize(info.Size()), info.ModTime().Format(time.DateTime)))
}

func humanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f%s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1fTB", size)
}
