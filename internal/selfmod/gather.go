package selfmod

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Whole-tree gathering limits.
const (
	maxConcurrentReads = 8
	maxSourceFileBytes = 512 * 1024
)

// GatherOptions filters the whole-tree walk.
type GatherOptions struct {
	IncludeExts []string
	SkipDirs    []string
}

// resolveInRoot returns the absolute, symlink-resolved location of rel and
// its clean slash-separated form. rel must stay inside root.
func resolveInRoot(root, rel string) (abs, clean string, err error) {
	if strings.TrimSpace(rel) == "" {
		return "", "", overseererrors.Wrap(overseererrors.ErrEmptyValue, "path")
	}
	if filepath.IsAbs(rel) {
		return "", "", overseererrors.Wrapf(overseererrors.ErrPathOutsideRoot, "%s is absolute", rel)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", "", err
	}
	if r, evalErr := filepath.EvalSymlinks(rootAbs); evalErr == nil {
		rootAbs = r
	}

	joined := filepath.Join(rootAbs, filepath.FromSlash(rel))
	if !within(rootAbs, joined) || joined == rootAbs {
		return "", "", overseererrors.Wrapf(overseererrors.ErrPathOutsideRoot, "%s escapes %s", rel, root)
	}

	// Resolve the deepest existing ancestor so a symlinked directory cannot
	// point the write outside the root.
	existing := joined
	var rest []string
	for {
		if _, statErr := os.Lstat(existing); statErr == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	if resolved, evalErr := filepath.EvalSymlinks(existing); evalErr == nil {
		joined = filepath.Join(append([]string{resolved}, rest...)...)
	}
	if !within(rootAbs, joined) {
		return "", "", overseererrors.Wrapf(overseererrors.ErrPathOutsideRoot, "%s resolves outside %s", rel, root)
	}

	relClean, err := filepath.Rel(rootAbs, joined)
	if err != nil {
		return "", "", err
	}
	return joined, filepath.ToSlash(relClean), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// gatherSingle reads one existing target.
func gatherSingle(root, target string) ([]SourceFile, error) {
	abs, rel, err := resolveInRoot(root, target)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs) //nolint:gosec // G304: confined to the source root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, overseererrors.Wrapf(overseererrors.ErrNotFound, "modification target %s", target)
		}
		return nil, overseererrors.Wrapf(err, "read %s", target)
	}
	return []SourceFile{{Path: rel, Content: string(data)}}, nil
}

// gatherTree walks root and reads every eligible file concurrently. Results
// are ordered by path.
func gatherTree(ctx context.Context, root string, opts GatherOptions) ([]SourceFile, error) {
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}
	exts := make(map[string]bool, len(opts.IncludeExts))
	for _, e := range opts.IncludeExts {
		exts[strings.ToLower(e)] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && (skip[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isTestFile(name) {
			return nil
		}
		if len(exts) > 0 && !exts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if info, infoErr := d.Info(); infoErr != nil || info.Size() > maxSourceFileBytes {
			return nil //nolint:nilerr // unreadable or oversized files are left out of the analysis
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, overseererrors.Wrapf(err, "walk %s", root)
	}

	files := make([]SourceFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p) //nolint:gosec // G304: paths come from walking the source root
			if err != nil {
				return overseererrors.Wrapf(err, "read %s", p)
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			files[i] = SourceFile{Path: filepath.ToSlash(rel), Content: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// isTestFile matches Go and common script test naming.
func isTestFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.HasPrefix(lower, "test_") ||
		strings.HasSuffix(lower, "_test.py") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.")
}
