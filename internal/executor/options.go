package executor

import "strings"

// option is one parsed command-line option. Short options carry their letter,
// long options their name without the leading dashes.
type option struct {
	short    byte
	long     string
	value    string
	hasValue bool
}

// optionSyntax describes how a program parses its options.
type optionSyntax struct {
	// valued lists the short letters that take a value. In a combined cluster
	// such as -uo FILE or -soFILE the value of such a letter is the rest of the
	// cluster, or the next argument when the cluster ends with it.
	valued string
	// abbrev accepts unambiguous prefixes of long names, as getopt_long does.
	// Ambiguous prefixes match every candidate.
	abbrev bool
}

var (
	sortSyntax = optionSyntax{valued: "kostST", abbrev: true}
	curlSyntax = optionSyntax{valued: "AbcCdDeEFHKmoPQrtTuUwxXyYz"}
	wgetSyntax = optionSyntax{valued: "aABDeiIlOoPQRtTUwX", abbrev: true}
	pingSyntax = optionSyntax{valued: "cFiIlmMpQsStTwW"}
	dateSyntax = optionSyntax{valued: "dfrs", abbrev: true}
	topSyntax  = optionSyntax{valued: "dnoOpuUw"}
)

// parse walks args up to a "--" terminator. A long option without "=" reports
// the next argument as its value but does not consume it, since the syntax
// does not say which long options take one.
func (s optionSyntax) parse(args []string) []option {
	var opts []option
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return opts
		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg[2:], "=")
			if !hasValue && i+1 < len(args) {
				value, hasValue = args[i+1], true
			}
			opts = append(opts, option{long: name, value: value, hasValue: hasValue})
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			for j := 1; j < len(arg); j++ {
				c := arg[j]
				if strings.IndexByte(s.valued, c) < 0 {
					opts = append(opts, option{short: c})
					continue
				}
				opt := option{short: c, value: arg[j+1:], hasValue: j+1 < len(arg)}
				if !opt.hasValue && i+1 < len(args) {
					i++
					opt.value, opt.hasValue = args[i], true
				}
				opts = append(opts, opt)
				break
			}
		}
	}
	return opts
}

func (s optionSyntax) matches(opt option, short byte, long string) bool {
	if opt.short != 0 {
		return short != 0 && opt.short == short
	}
	if long == "" || opt.long == "" {
		return false
	}
	return opt.long == long || (s.abbrev && strings.HasPrefix(long, opt.long))
}

// has reports whether the short letter or the long name appears in args.
func (s optionSyntax) has(args []string, short byte, long string) bool {
	for _, opt := range s.parse(args) {
		if s.matches(opt, short, long) {
			return true
		}
	}
	return false
}

// values returns every value given to the short letter or the long name.
func (s optionSyntax) values(args []string, short byte, long string) []string {
	var values []string
	for _, opt := range s.parse(args) {
		if opt.hasValue && s.matches(opt, short, long) {
			values = append(values, opt.value)
		}
	}
	return values
}

// find returns the first option among the short letters or long name
// prefixes, rendered for an error message.
func (s optionSyntax) find(args []string, shorts string, longPrefixes ...string) (string, bool) {
	for _, opt := range s.parse(args) {
		if opt.short != 0 {
			if strings.IndexByte(shorts, opt.short) >= 0 {
				return "-" + string(opt.short), true
			}
			continue
		}
		for _, prefix := range longPrefixes {
			if strings.HasPrefix(opt.long, prefix) || (s.abbrev && strings.HasPrefix(prefix, opt.long)) {
				return "--" + opt.long, true
			}
		}
	}
	return "", false
}
