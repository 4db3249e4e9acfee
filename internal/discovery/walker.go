package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// IgnoreFileName holds extra exclude patterns at the source root
	IgnoreFileName = ".nuvosignore"

	// DefaultMaxFileBytes skips files larger than 1 MiB
	DefaultMaxFileBytes = 1 << 20

	// sniffBytes is how much of a file is checked for NUL bytes
	sniffBytes = 8000
)

// DefaultSkipDirs are never walked unless an include pattern reaches into them
var DefaultSkipDirs = []string{".git", ".nuvos", "node_modules", "bin", "obj", "vendor"}

// DefaultBinaryExtensions are reported as binary without reading the file
var DefaultBinaryExtensions = []string{
	".exe", ".dll", ".so", ".dylib", ".a", ".lib", ".o", ".obj", ".pdb", ".wasm",
	".class", ".jar", ".war", ".pyc", ".nupkg", ".snupkg",
	".zip", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".tar",
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tiff", ".psd",
	".mp3", ".wav", ".ogg", ".flac", ".mp4", ".mkv", ".avi", ".mov", ".wmv",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".ttf", ".otf", ".woff", ".woff2", ".eot",
	".db", ".sqlite", ".bin", ".dat",
}

// Options configures a Walker
type Options struct {
	Root             string
	RepoID           string
	Include          []string
	Exclude          []string
	BinaryExtensions []string
	MaxFileBytes     int64
	Logger           *slog.Logger
}

// Walker lists the files of a source tree that are candidates for indexing
type Walker struct {
	root      string
	repoID    string
	include   []pattern
	exclude   []pattern
	binaryExt map[string]bool
	maxBytes  int64
	logger    *slog.Logger
}

// New validates glob patterns, reads the ignore file and creates a Walker
func New(opts Options) (*Walker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: source root: %v", types.ErrConfig, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: source root: %v", types.ErrConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source root %s is not a directory", types.ErrConfig, root)
	}

	ignored, err := readIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	include, err := compilePatterns(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(append(append([]string(nil), opts.Exclude...), ignored...))
	if err != nil {
		return nil, err
	}

	exts := opts.BinaryExtensions
	if exts == nil {
		exts = DefaultBinaryExtensions
	}
	binaryExt := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		binaryExt[e] = true
	}

	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Walker{
		root:      root,
		repoID:    opts.RepoID,
		include:   include,
		exclude:   exclude,
		binaryExt: binaryExt,
		maxBytes:  maxBytes,
		logger:    logger,
	}, nil
}

// Root returns the absolute source root
func (w *Walker) Root() string {
	return w.root
}

// Discover walks the tree and returns every candidate file sorted by
// relative path. Binary and oversized files are included with IsBinary set.
func (w *Walker) Discover(ctx context.Context) ([]types.DiscoveredFile, error) {
	var files []types.DiscoveredFile

	err := filepath.WalkDir(w.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if full == w.root {
				return err
			}
			w.logger.Warn("skipping unreadable path", slog.String("path", full), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if full == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.SkipFile(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		file := types.DiscoveredFile{
			RepoID:       w.repoID,
			FullPath:     full,
			RelativePath: rel,
			SizeBytes:    info.Size(),
		}
		file.IsBinary = w.isBinary(full, rel, info.Size())
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

// SkipDir reports whether a directory, given relative to the root with
// forward slashes, is not walked
func (w *Walker) SkipDir(rel string) bool {
	name := path.Base(rel)
	if isDefaultSkipped(name) && !w.includeReaches(rel) {
		return true
	}
	for _, p := range w.exclude {
		if p.matchDir(rel) {
			return true
		}
	}
	return false
}

// SkipFile reports whether a file is filtered out by patterns, without
// looking at its content. It also rejects files under skipped directories,
// which lets the watcher filter raw events.
func (w *Walker) SkipFile(rel string) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if w.SkipDir(dir) {
			return true
		}
	}
	if path.Base(rel) == IgnoreFileName {
		return true
	}
	if matchAnyFile(w.exclude, rel) {
		return true
	}
	return len(w.include) > 0 && !matchAnyFile(w.include, rel)
}

// includeReaches reports whether an include pattern names something
// inside dir, so a default-skipped directory like vendor can be opted in
func (w *Walker) includeReaches(dir string) bool {
	for _, p := range w.include {
		if strings.HasPrefix(p.glob, dir+"/") {
			return true
		}
	}
	return false
}

func (w *Walker) isBinary(full, rel string, size int64) bool {
	if w.binaryExt[strings.ToLower(path.Ext(rel))] {
		return true
	}
	if size > w.maxBytes {
		w.logger.Debug("file exceeds size limit", slog.String("path", rel), slog.Int64("size", size))
		return true
	}
	binary, err := sniffBinary(full)
	if err != nil {
		w.logger.Debug("could not sniff file", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	return binary
}

// sniffBinary reports whether the first bytes of a file contain a NUL.
// UTF-16 text starts with a byte order mark and is not treated as binary.
func sniffBinary(full string) (bool, error) {
	f, err := os.Open(full)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	buf = buf[:n]
	if bytes.HasPrefix(buf, []byte{0xFF, 0xFE}) || bytes.HasPrefix(buf, []byte{0xFE, 0xFF}) {
		return false, nil
	}
	return bytes.IndexByte(buf, 0) >= 0, nil
}

func isDefaultSkipped(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, d := range DefaultSkipDirs {
		if strings.EqualFold(name, d) {
			return true
		}
	}
	return false
}

// pattern is one compiled gitignore-style line
type pattern struct {
	glob    string
	dirOnly bool
}

// matchFile matches the path itself or anything below a matching directory
func (p pattern) matchFile(rel string) bool {
	if !p.dirOnly {
		if ok, _ := doublestar.Match(p.glob, rel); ok {
			return true
		}
	}
	ok, _ := doublestar.Match(p.glob+"/**", rel)
	return ok
}

func (p pattern) matchDir(rel string) bool {
	ok, _ := doublestar.Match(p.glob, rel)
	return ok
}

// compilePatterns turns gitignore-style lines into doublestar patterns. A
// pattern without a slash matches at any depth; a trailing slash limits it
// to directories.
func compilePatterns(raw []string) ([]pattern, error) {
	var out []pattern
	for _, p := range raw {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}

		dirOnly := strings.HasSuffix(p, "/")
		p = strings.TrimSuffix(p, "/")
		anchored := strings.HasPrefix(p, "/")
		p = strings.TrimPrefix(p, "/")
		if p == "" {
			continue
		}

		if !anchored && !strings.Contains(p, "/") {
			p = "**/" + p
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: invalid glob pattern %q", types.ErrConfig, p)
		}
		out = append(out, pattern{glob: p, dirOnly: dirOnly})
	}
	return out, nil
}

func matchAnyFile(patterns []pattern, rel string) bool {
	for _, p := range patterns {
		if p.matchFile(rel) {
			return true
		}
	}
	return false
}

// readIgnoreFile returns the pattern lines of an ignore file, or nothing
// when it does not exist
func readIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
