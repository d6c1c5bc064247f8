// Package classify turns raw build output lines into structured error and
// warning records. Matching is ordered, specific signatures before generic
// ones, and each line classifies at most once.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Category groups records by what broke.
type Category string

const (
	CategoryHeader Category = "header"
	CategoryLinker Category = "linker"
	CategorySyntax Category = "syntax"
	CategoryCMake  Category = "cmake"
	CategoryOther  Category = "other"
)

// Severity ranks how much attention a record deserves.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityFixable  Severity = "fixable"
	SeverityWarning  Severity = "warning"
	SeverityNoise    Severity = "noise"
)

// Record is one classified line.
type Record struct {
	Type     string   `json:"type"` // error or warning
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
}

const (
	kindError   = "error"
	kindWarning = "warning"
)

// matcher binds a signature regex to a record builder. A builder may reject
// a match to let a later, more specific matcher take the line.
type matcher struct {
	re    *regexp.Regexp
	build func(groups []string) (Record, bool)
}

// toolPrefixes are prefixes the generic file:error matcher must not eat;
// their own matchers assign the linker category.
var toolPrefixes = map[string]bool{"collect2": true, "ld": true, "/usr/bin/ld": true}

var matchers = []matcher{
	{
		re: regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(?:fatal )?error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return located(kindError, g[1], g[2], g[3], g[4]), true
		},
	},
	{
		re: regexp.MustCompile(`^(.+?):(\d+):\s*(?:fatal )?error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return located(kindError, g[1], g[2], "", g[3]), true
		},
	},
	{
		re: regexp.MustCompile(`^fatal error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return bare(kindError, g[1]), true
		},
	},
	{
		re: regexp.MustCompile(`^(.+?):\s*error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			if toolPrefixes[g[1]] {
				return Record{}, false
			}
			return located(kindError, g[1], "", "", g[2]), true
		},
	},
	{
		re: regexp.MustCompile(`^make\[\d+\]:\s*\*\*\*\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return bare(kindError, g[1]), true
		},
	},
	{
		re: regexp.MustCompile(`^collect2:\s*error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return forced(kindError, g[1], CategoryLinker), true
		},
	},
	{
		re: regexp.MustCompile(`^(?:/usr/bin/ld:\s*(?:error:\s*)?|ld:\s*error:\s*)(.+)$`),
		build: func(g []string) (Record, bool) {
			return forced(kindError, g[1], CategoryLinker), true
		},
	},
	{
		re: regexp.MustCompile(`^CMake Error at (.+?):(\d+)[^:]*:\s*(.*)$`),
		build: func(g []string) (Record, bool) {
			message := strings.TrimSpace(g[3])
			if message == "" {
				message = "configuration failed at " + g[1] + ":" + g[2]
			}
			rec := forced(kindError, message, CategoryCMake)
			rec.File = g[1]
			rec.Line = atoi(g[2])
			return rec, true
		},
	},
	{
		re: regexp.MustCompile(`^CMake Error:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return forced(kindError, g[1], CategoryCMake), true
		},
	},
	{
		re: regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*warning:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return located(kindWarning, g[1], g[2], g[3], g[4]), true
		},
	},
	{
		re: regexp.MustCompile(`^(.+?):(\d+):\s*warning:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return located(kindWarning, g[1], g[2], "", g[3]), true
		},
	},
	{
		re: regexp.MustCompile(`^warning:\s*(.+)$`),
		build: func(g []string) (Record, bool) {
			return bare(kindWarning, g[1]), true
		},
	},
	{
		re: regexp.MustCompile(`^CMake Warning(?: at (.+?):(\d+))?[^:]*:\s*(.*)$`),
		build: func(g []string) (Record, bool) {
			message := strings.TrimSpace(g[3])
			if message == "" {
				message = "cmake warning"
			}
			rec := forced(kindWarning, message, CategoryCMake)
			rec.File = g[1]
			rec.Line = atoi(g[2])
			return rec, true
		},
	},
}

// ClassifyLine classifies one line of build output. The second return is
// false for ordinary output that is neither an error nor a warning.
func ClassifyLine(line string) (Record, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Record{}, false
	}
	for _, m := range matchers {
		groups := m.re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}
		rec, ok := m.build(groups)
		if !ok {
			continue
		}
		return finishRecord(rec), true
	}
	return Record{}, false
}

func located(kind, file, line, column, message string) Record {
	return Record{
		Type:    kind,
		File:    file,
		Line:    atoi(line),
		Column:  atoi(column),
		Message: message,
	}
}

func bare(kind, message string) Record {
	return Record{Type: kind, Message: message}
}

func forced(kind, message string, category Category) Record {
	return Record{Type: kind, Message: message, Category: category}
}

// finishRecord fills in category (unless a matcher forced one) and the
// fixed severity lookup.
func finishRecord(rec Record) Record {
	if rec.Category == "" {
		rec.Category = categorize(rec.Message)
	}
	rec.Severity = severityFor(rec.Type, rec.Category, rec.File, rec.Message)
	return rec
}

var (
	linkerKeywords = []string{"undefined reference", "cannot find -l", "multiple definition"}
	headerKeywords = []string{"no such file or directory", "#include", "file not found"}
	syntaxKeywords = []string{
		"expected", "syntax", "parse error", "undeclared",
		"not declared", "invalid conversion", "incompatible",
	}
	cmakeKeywords = []string{"could not find", "missing", "required"}
)

func categorize(message string) Category {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, linkerKeywords):
		return CategoryLinker
	case containsAny(lower, headerKeywords):
		return CategoryHeader
	case containsAny(lower, syntaxKeywords):
		return CategorySyntax
	case containsAny(lower, cmakeKeywords):
		return CategoryCMake
	default:
		return CategoryOther
	}
}

// thirdPartyLibs mark warning locations whose noise is outside this
// project's control.
var thirdPartyLibs = []string{"libevent", "libwebsockets", "openssl", "icu", "zlib"}

func severityFor(kind string, category Category, file, message string) Severity {
	if kind == kindWarning {
		lowerFile := strings.ToLower(file)
		if containsAny(lowerFile, thirdPartyLibs) && !strings.Contains(strings.ToLower(message), "deprecat") {
			return SeverityNoise
		}
		return SeverityWarning
	}
	switch category {
	case CategoryHeader, CategorySyntax:
		return SeverityFixable
	case CategoryLinker, CategoryCMake:
		return SeverityCritical
	default:
		return SeverityNoise
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
