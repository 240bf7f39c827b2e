package executor

import (
	"strconv"
	"strings"
)

func builtinPrograms() map[string]program {
	inspect := func(v ArgValidator) program { return program{category: CategoryInspect, validate: v} }
	status := func(v ArgValidator) program { return program{category: CategoryStatus, validate: v} }
	file := func(v ArgValidator) program { return program{category: CategoryFile, validate: v} }
	network := func(v ArgValidator) program { return program{category: CategoryNetwork, validate: v} }
	toolchain := func(v ArgValidator) program { return program{category: CategoryToolchain, validate: v} }

	return map[string]program{
		"ls":    inspect(nil),
		"cat":   inspect(nil),
		"head":  inspect(nil),
		"tail":  inspect(validateTail),
		"wc":    inspect(nil),
		"grep":  inspect(nil),
		"find":  inspect(validateFind),
		"sort":  inspect(validateSort),
		"uniq":  inspect(validateUniq),
		"pwd":   inspect(nil),
		"echo":  inspect(nil),
		"date":  inspect(validateDate),
		"du":    inspect(nil),
		"df":    inspect(nil),
		"stat":  inspect(nil),
		"file":  inspect(nil),
		"which": inspect(nil),

		"ps":         status(nil),
		"uptime":     status(nil),
		"free":       status(nil),
		"whoami":     status(nil),
		"hostname":   status(validateNoPositional),
		"uname":      status(nil),
		"top":        status(validateTop),
		"systemctl":  status(validateSubcommand("status", "is-active", "is-enabled", "is-failed", "list-units", "list-timers", "list-unit-files", "show", "cat")),
		"journalctl": status(validateJournalctl),
		"docker":     status(validateDocker),
		"git":        status(validateGit),

		"mkdir": file(validateSandboxPaths("p", "v")),
		"touch": file(validateSandboxPaths("c", "a", "m")),
		"cp":    file(validateSandboxPaths("r", "R", "p", "v", "f", "n", "a")),
		"mv":    file(validateSandboxPaths("v", "f", "n")),
		"rm":    file(validateSandboxPaths("r", "R", "f", "v")),
		"chmod": file(validateChmod),

		"ping":     network(validatePing),
		"curl":     network(validateCurl),
		"wget":     network(validateWget),
		"nslookup": network(nil),
		"dig":      network(nil),

		"go":      toolchain(validateSubcommand("version", "env", "list", "vet", "test", "build", "doc")),
		"python3": toolchain(validateScript),
		"node":    toolchain(validateScript),
		"npm":     toolchain(validateSubcommand("ls", "list", "view", "test", "--version", "-v")),
		"pip3":    toolchain(validateSubcommand("list", "show", "freeze", "--version", "-V")),
	}
}

// splitArgs separates flags from positional arguments. Everything after "--"
// is positional.
func splitArgs(args []string) (flags, positional []string) {
	for i, arg := range args {
		if arg == "--" {
			return flags, append(positional, args[i+1:]...)
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			continue
		}
		positional = append(positional, arg)
	}
	return flags, positional
}

func hasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		for _, name := range names {
			if arg == name || strings.HasPrefix(arg, name+"=") {
				return true
			}
		}
	}
	return false
}

func validateNoPositional(_ *Policy, args []string) error {
	if _, positional := splitArgs(args); len(positional) > 0 {
		return violation("positional arguments are not allowed")
	}
	return nil
}

func validateTail(_ *Policy, args []string) error {
	for _, arg := range args {
		if arg == "--follow" || strings.HasPrefix(arg, "--follow=") || arg == "--retry" {
			return violation("following files is not allowed")
		}
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.ContainsAny(arg, "fF") {
			return violation("following files is not allowed")
		}
	}
	return nil
}

var findForbidden = []string{"-delete", "-exec", "-execdir", "-ok", "-okdir", "-fprint", "-fprint0", "-fprintf", "-fls"}

func validateFind(_ *Policy, args []string) error {
	for _, arg := range args {
		for _, forbidden := range findForbidden {
			if arg == forbidden {
				return violationf("primary %s is not allowed", arg)
			}
		}
	}
	return nil
}

func validateSort(_ *Policy, args []string) error {
	if sortSyntax.has(args, 'o', "output") {
		return violation("writing output files is not allowed")
	}
	if sortSyntax.has(args, 0, "compress-program") {
		return violation("compression programs are not allowed")
	}
	return nil
}

func validateUniq(_ *Policy, args []string) error {
	if _, positional := splitArgs(args); len(positional) > 1 {
		return violation("an output file argument is not allowed")
	}
	return nil
}

func validateDate(_ *Policy, args []string) error {
	if dateSyntax.has(args, 's', "set") {
		return violation("setting the clock is not allowed")
	}
	return validateOnlyFormatPositional(args)
}

func validateOnlyFormatPositional(args []string) error {
	_, positional := splitArgs(args)
	for _, arg := range positional {
		if !strings.HasPrefix(arg, "+") {
			return violationf("unexpected argument %q", arg)
		}
	}
	return nil
}

func validateTop(_ *Policy, args []string) error {
	if !topSyntax.has(args, 'b', "") {
		return violation("top must run in batch mode (-b)")
	}
	if len(topSyntax.values(args, 'n', "")) == 0 {
		return violation("top requires an iteration count (-n)")
	}
	return nil
}

// validateSubcommand allows only the listed first positional argument.
func validateSubcommand(allowed ...string) ArgValidator {
	return func(_ *Policy, args []string) error {
		if len(args) == 0 {
			return violation("a subcommand is required")
		}
		sub := args[0]
		for _, a := range allowed {
			if sub == a {
				return nil
			}
		}
		return violationf("subcommand %q is not allowed", sub)
	}
}

func validateJournalctl(_ *Policy, args []string) error {
	for _, arg := range args {
		switch {
		case arg == "-f", arg == "--follow",
			strings.HasPrefix(arg, "--vacuum"),
			arg == "--rotate", arg == "--flush", arg == "--sync",
			arg == "--relinquish-var", arg == "--setup-keys":
			return violationf("option %s is not allowed", arg)
		}
	}
	return nil
}

func validateDocker(p *Policy, args []string) error {
	if err := validateSubcommand("ps", "images", "logs", "inspect", "stats", "version", "info", "top")(p, args); err != nil {
		return err
	}
	rest := args[1:]
	switch args[0] {
	case "logs":
		if hasFlag(rest, "-f", "--follow") {
			return violation("following logs is not allowed")
		}
	case "stats":
		if !hasFlag(rest, "--no-stream") {
			return violation("docker stats requires --no-stream")
		}
	}
	return nil
}

var gitReadOnly = map[string]bool{
	"status":    true,
	"log":       true,
	"diff":      true,
	"show":      true,
	"rev-parse": true,
	"ls-files":  true,
	"describe":  true,
	"blame":     true,
	"shortlog":  true,
	"branch":    true,
	"tag":       true,
	"remote":    true,
}

func validateGit(_ *Policy, args []string) error {
	if len(args) == 0 {
		return violation("a subcommand is required")
	}
	sub := args[0]
	if !gitReadOnly[sub] {
		return violationf("subcommand %q is not allowed", sub)
	}
	rest := args[1:]
	if hasFlag(rest, "--output", "-o") {
		return violation("writing output files is not allowed")
	}
	switch sub {
	case "branch", "tag", "remote":
		flags, positional := splitArgs(rest)
		if len(positional) > 0 {
			return violationf("git %s may only list", sub)
		}
		for _, f := range flags {
			switch f {
			case "-l", "--list", "-v", "-vv", "-a", "-r", "--all", "--verbose", "--show-current":
			default:
				return violationf("git %s option %s is not allowed", sub, f)
			}
		}
	}
	return nil
}

// validateSandboxPaths allows only the listed short flags and requires every
// positional argument to resolve inside the sandbox root, excluding the root itself.
func validateSandboxPaths(shortFlags ...string) ArgValidator {
	allowed := strings.Join(shortFlags, "")
	return func(p *Policy, args []string) error {
		flags, positional := splitArgs(args)
		for _, f := range flags {
			if strings.HasPrefix(f, "--") {
				return violationf("option %s is not allowed", f)
			}
			for _, c := range f[1:] {
				if !strings.ContainsRune(allowed, c) {
					return violationf("option -%c is not allowed", c)
				}
			}
		}
		if len(positional) == 0 {
			return violation("at least one path is required")
		}
		return p.checkSandboxed(positional)
	}
}

func (p *Policy) checkSandboxed(paths []string) error {
	for _, path := range paths {
		if !p.insideRoot(path) {
			return violationf("path %q is outside the sandbox", path)
		}
		if p.isRoot(path) {
			return violationf("path %q is the sandbox root", path)
		}
	}
	return nil
}

func validateChmod(p *Policy, args []string) error {
	flags, positional := splitArgs(args)
	for _, f := range flags {
		if f != "-R" && f != "-v" {
			// Symbolic modes such as -x look like flags.
			if isMode(f) {
				positional = append([]string{f}, positional...)
				continue
			}
			return violationf("option %s is not allowed", f)
		}
	}
	if len(positional) < 2 {
		return violation("a mode and at least one path are required")
	}
	mode := positional[0]
	if !isMode(mode) {
		return violationf("invalid mode %q", mode)
	}
	if strings.ContainsAny(mode, "st") || (len(mode) == 4 && mode[0] != '0') {
		return violation("setuid, setgid and sticky bits are not allowed")
	}
	return p.checkSandboxed(positional[1:])
}

func isMode(s string) bool {
	if _, err := strconv.ParseUint(s, 8, 32); err == nil && len(s) <= 4 {
		return true
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("ugoa+-=rwxXst,", c) {
			return false
		}
	}
	return true
}

const maxPingCount = 20

func validatePing(_ *Policy, args []string) error {
	if pingSyntax.has(args, 'f', "") {
		return violation("flood ping is not allowed")
	}
	counts := pingSyntax.values(args, 'c', "")
	if len(counts) == 0 {
		return violation("ping requires a bounded count (-c)")
	}
	for _, c := range counts {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 || n > maxPingCount {
			return violationf("ping count must be between 1 and %d", maxPingCount)
		}
	}
	return nil
}

// curlUploads are the options that send a request body or read options
// from a file.
var curlUploads = []string{"upload-file", "data", "form", "config", "json"}

// curlWrites are the long options that name a file curl writes.
var curlWrites = []string{"output", "output-dir", "cookie-jar", "dump-header", "trace", "trace-ascii", "stderr", "libcurl", "etag-save", "hsts", "alt-svc"}

func validateCurl(p *Policy, args []string) error {
	if opt, ok := curlSyntax.find(args, "dTFK", curlUploads...); ok {
		return violationf("option %s is not allowed", opt)
	}
	for _, arg := range args {
		if strings.HasPrefix(strings.ToLower(arg), "file:") {
			return violation("file URLs are not allowed")
		}
	}
	for _, method := range curlSyntax.values(args, 'X', "request") {
		if m := strings.ToUpper(method); m != "GET" && m != "HEAD" {
			return violationf("request method %s is not allowed", method)
		}
	}
	outputs := curlSyntax.values(args, 'o', "")
	outputs = append(outputs, curlSyntax.values(args, 'c', "")...)
	outputs = append(outputs, curlSyntax.values(args, 'D', "")...)
	for _, long := range curlWrites {
		outputs = append(outputs, curlSyntax.values(args, 0, long)...)
	}
	return p.checkOutputs(outputs)
}

var wgetForbidden = []string{"post", "method", "body", "input-file", "execute", "config"}

func validateWget(p *Policy, args []string) error {
	if opt, ok := wgetSyntax.find(args, "ie", wgetForbidden...); ok {
		return violationf("option %s is not allowed", opt)
	}
	var outputs []string
	for _, o := range []struct {
		short byte
		long  string
	}{
		{'O', "output-document"},
		{'P', "directory-prefix"},
		{'o', "output-file"},
		{'a', "append-output"},
	} {
		outputs = append(outputs, wgetSyntax.values(args, o.short, o.long)...)
	}
	return p.checkOutputs(outputs)
}

func (p *Policy) checkOutputs(paths []string) error {
	for _, path := range paths {
		if path == "-" {
			continue
		}
		if !p.insideRoot(path) {
			return violationf("output %q is outside the sandbox", path)
		}
	}
	return nil
}

// validateScript allows version queries or a script file inside the sandbox.
func validateScript(p *Policy, args []string) error {
	if len(args) == 1 && (args[0] == "--version" || args[0] == "-V") {
		return nil
	}
	flags, positional := splitArgs(args)
	if len(flags) > 0 && len(positional) == 0 {
		return violation("inline code is not allowed")
	}
	for _, f := range flags {
		if f == "-c" || f == "-e" || f == "--eval" || f == "-p" || f == "--print" || f == "-m" {
			return violationf("option %s is not allowed", f)
		}
	}
	if len(positional) == 0 {
		return violation("a script path is required")
	}
	if !p.insideRoot(positional[0]) {
		return violationf("script %q is outside the sandbox", positional[0])
	}
	return nil
}
