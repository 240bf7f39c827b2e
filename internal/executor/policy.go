package executor

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Category is a tagged group of allowed programs.
type Category string

// Command categories.
const (
	CategoryInspect   Category = "inspect"
	CategoryStatus    Category = "status"
	CategoryFile      Category = "file"
	CategoryNetwork   Category = "network"
	CategoryToolchain Category = "toolchain"
)

// DefaultCategories are enabled when no categories are configured.
//
//nolint:gochecknoglobals // Read-only default set
var DefaultCategories = []Category{CategoryInspect, CategoryStatus, CategoryFile, CategoryNetwork}

// ArgValidator checks the arguments of one program. args excludes the program name.
type ArgValidator func(p *Policy, args []string) error

type program struct {
	category Category
	validate ArgValidator
}

// dangerousPatterns are rejected anywhere in the raw command line.
//
//nolint:gochecknoglobals // Compiled once
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*-[a-z]*[rf][a-z]*\s+/(\s|$|\*)`),
	regexp.MustCompile(`(?i)--no-preserve-root`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`(?i)\bchmod\s+-R\s+0?777\s+/`),
	regexp.MustCompile(`(?i)\bchown\s+-R\b.*\s/`),
	regexp.MustCompile(`(?i)\bmv\s+/\s`),
	regexp.MustCompile(`(?i)>\s*/dev/(sd[a-z]|nvme|mmcblk|hd[a-z])`),
	regexp.MustCompile(`(?i)\b(curl|wget)\b.*\|\s*(ba|z|da)?sh\b`),
}

// Policy is the command safety policy. It is immutable after construction and
// safe for concurrent use.
type Policy struct {
	root        string
	categories  map[Category]bool
	deniedPaths []string
	dangerous   []*regexp.Regexp
	programs    map[string]program
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy) error

// WithCategories replaces the enabled category set.
func WithCategories(categories ...Category) PolicyOption {
	return func(p *Policy) error {
		p.categories = make(map[Category]bool, len(categories))
		for _, c := range categories {
			if !knownCategory(c) {
				return overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "unknown command category %q", c)
			}
			p.categories[c] = true
		}
		return nil
	}
}

// WithDeniedPaths adds paths that may never appear as arguments.
func WithDeniedPaths(paths ...string) PolicyOption {
	return func(p *Policy) error {
		for _, path := range paths {
			if path == "" {
				continue
			}
			p.deniedPaths = append(p.deniedPaths, filepath.Clean(path))
		}
		return nil
	}
}

// WithDangerousPatterns adds regular expressions rejected on the full command line.
func WithDangerousPatterns(patterns ...string) PolicyOption {
	return func(p *Policy) error {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return overseererrors.Wrapf(overseererrors.ErrInvalidArgument, "dangerous pattern %q: %v", pattern, err)
			}
			p.dangerous = append(p.dangerous, re)
		}
		return nil
	}
}

// NewPolicy builds a policy rooted at the sandbox directory root.
func NewPolicy(root string, opts ...PolicyOption) (*Policy, error) {
	if root == "" {
		return nil, overseererrors.Wrap(overseererrors.ErrEmptyValue, "sandbox root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, overseererrors.Wrapf(err, "resolve sandbox root %s", root)
	}

	p := &Policy{
		root:      filepath.Clean(abs),
		dangerous: append([]*regexp.Regexp(nil), dangerousPatterns...),
		programs:  builtinPrograms(),
	}
	if err := WithCategories(DefaultCategories...)(p); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Root returns the absolute sandbox root.
func (p *Policy) Root() string {
	return p.root
}

// Allowed returns the sorted names of programs allowed by the enabled categories.
func (p *Policy) Allowed() []string {
	names := make([]string, 0, len(p.programs))
	for name, prog := range p.programs {
		if p.categories[prog.category] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Check validates a command line and returns its argv. Every failure wraps
// ErrSafetyViolation. Check has no side effects.
func (p *Policy) Check(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, violation("empty command")
	}
	for _, re := range p.dangerous {
		if re.MatchString(line) {
			return nil, violationf("dangerous pattern %q matched", re.String())
		}
	}

	argv, err := Tokenize(line)
	if err != nil {
		return nil, err
	}

	name := argv[0]
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return nil, violationf("program %q must be a bare name", name)
	}
	prog, ok := p.programs[name]
	if !ok {
		return nil, violationf("program %q is not in the allow-list", name)
	}
	if !p.categories[prog.category] {
		return nil, violationf("program %q belongs to disabled category %s", name, prog.category)
	}

	args := argv[1:]
	if err := p.checkDeniedPaths(args); err != nil {
		return nil, err
	}
	if prog.validate != nil {
		if err := prog.validate(p, args); err != nil {
			return nil, overseererrors.Wrapf(err, "%s", name)
		}
	}
	return argv, nil
}

func (p *Policy) checkDeniedPaths(args []string) error {
	if len(p.deniedPaths) == 0 {
		return nil
	}
	for _, arg := range args {
		candidates := []string{arg}
		if i := strings.IndexByte(arg, '='); i >= 0 {
			candidates = append(candidates, arg[i+1:])
		}
		for _, c := range candidates {
			if c == "" || strings.HasPrefix(c, "-") {
				continue
			}
			resolved := p.resolve(c)
			for _, denied := range p.deniedPaths {
				if isWithin(denied, resolved) {
					return violationf("path %q is denied", c)
				}
			}
		}
	}
	return nil
}

// resolve makes path absolute relative to the sandbox root and follows any
// symlinks in its existing prefix.
func (p *Policy) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.root, path)
	}
	path = filepath.Clean(path)
	return evalExistingPrefix(path)
}

// insideRoot reports whether path resolves inside the sandbox root.
// The root itself counts as inside.
func (p *Policy) insideRoot(path string) bool {
	return isWithin(evalExistingPrefix(p.root), p.resolve(path))
}

// isRoot reports whether path resolves to the sandbox root itself.
func (p *Policy) isRoot(path string) bool {
	return p.resolve(path) == evalExistingPrefix(p.root)
}

func evalExistingPrefix(path string) string {
	rest := ""
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		rest = filepath.Join(filepath.Base(current), rest)
		current = parent
	}
}

func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

func knownCategory(c Category) bool {
	switch c {
	case CategoryInspect, CategoryStatus, CategoryFile, CategoryNetwork, CategoryToolchain:
		return true
	default:
		return false
	}
}
