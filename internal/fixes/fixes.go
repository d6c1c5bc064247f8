// Package fixes matches classified build records against a catalog of known
// failure signatures and proposes remediation commands.
package fixes

import (
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/buildmon/internal/classify"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
)

// FixType grades how involved a remediation is.
type FixType string

const (
	FixQuick   FixType = "quick"
	FixMedium  FixType = "medium"
	FixComplex FixType = "complex"
)

// Manager selects which command variant a suggestion renders.
type Manager string

const (
	ManagerApt     Manager = "apt"
	ManagerDNF     Manager = "dnf"
	ManagerBrew    Manager = "brew"
	ManagerGeneric Manager = "generic"
)

// ConfidenceFloor is the minimum adjusted confidence for a suggestion to be
// reported at all.
const ConfidenceFloor = 50

// Suggestion is a concrete remediation for a recognized error signature.
type Suggestion struct {
	Pattern    string   `json:"pattern"`
	Text       string   `json:"suggested_fix"`
	Commands   []string `json:"fix_commands"`
	FixType    FixType  `json:"fix_type"`
	Confidence int      `json:"confidence"`
}

// DetectManager probes PATH for a known package manager. Inconclusive
// detection falls back to the generic command variants.
func DetectManager() Manager {
	for _, m := range []Manager{ManagerApt, ManagerDNF, ManagerBrew} {
		if _, err := exec.LookPath(string(m)); err == nil {
			return m
		}
	}
	return ManagerGeneric
}

// Matcher resolves records against the pattern catalog.
type Matcher struct {
	catalog []entry
	manager Manager
}

// NewMatcher builds a matcher using the package manager found on PATH.
func NewMatcher() *Matcher {
	return NewMatcherFor(DetectManager())
}

// NewMatcherFor builds a matcher with a fixed package manager.
func NewMatcherFor(manager Manager) *Matcher {
	return &Matcher{catalog: catalog, manager: manager}
}

// Match returns the suggestion from the first catalog entry whose signature
// matches the record and whose adjusted confidence reaches the floor. At most
// one suggestion is produced per record.
func (m *Matcher) Match(rec classify.Record) foundation.Option[Suggestion] {
	for _, e := range m.catalog {
		if !e.applies(rec.Category) || !e.signature.MatchString(rec.Message) {
			continue
		}
		confidence := adjustedConfidence(e, rec)
		if confidence < ConfidenceFloor {
			continue
		}
		return foundation.Some(Suggestion{
			Pattern:    e.id,
			Text:       e.text,
			Commands:   e.commandsFor(m.manager),
			FixType:    e.fixType,
			Confidence: confidence,
		})
	}
	return foundation.None[Suggestion]()
}

// adjustedConfidence scales the base confidence by match strength (a
// signature hit counts as full strength) and applies context bonuses.
func adjustedConfidence(e entry, rec classify.Record) int {
	confidence := e.base
	if e.toolchain && hasCSourceExt(rec.File) {
		confidence += 5
	}
	if len(rec.Message) > 100 {
		confidence += 3
	}
	if strings.Contains(strings.ToLower(rec.Message), "fatal error") {
		confidence += 2
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

var cSourceExts = map[string]bool{
	".c":   true,
	".cpp": true,
	".cc":  true,
	".cxx": true,
	".h":   true,
	".hpp": true,
}

func hasCSourceExt(file string) bool {
	if file == "" {
		return false
	}
	return cSourceExts[strings.ToLower(filepath.Ext(file))]
}
