// Package deps detects changes to dependency-related files between builds
// and recommends how much of the build to redo.
package deps

import (
	"sort"
	"strings"
)

// Impact ranks how much of the build a dependency change invalidates.
type Impact string

const (
	ImpactNone             Impact = "none"
	ImpactDependencyUpdate Impact = "dependency_update"
	ImpactPackageSpecific  Impact = "package_specific"
	ImpactFullRebuild      Impact = "full_rebuild"
)

var impactRank = map[Impact]int{
	ImpactNone:             0,
	ImpactDependencyUpdate: 1,
	ImpactPackageSpecific:  2,
	ImpactFullRebuild:      3,
}

// Outranks reports whether i is more severe than other.
func (i Impact) Outranks(other Impact) bool {
	return impactRank[i] > impactRank[other]
}

// FileType groups tracked files by what kind of dependency input they are.
type FileType string

const (
	TypeBuildConfig   FileType = "build_config"
	TypePackageConfig FileType = "package_config"
	TypeManifest      FileType = "dependency_manifest"
	TypeUnknown       FileType = "unknown" // explicitly tracked extra paths
)

// ChangeKind says how a tracked path differed from the prior snapshot.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change is one tracked path that differs from the prior snapshot.
type Change struct {
	Path           string     `json:"file"`
	Kind           ChangeKind `json:"change"`
	Type           FileType   `json:"type"`
	Impact         Impact     `json:"impact"`
	Recommendation string     `json:"recommendation"`
}

// Report is the outcome of one dependency scan. Impact is the most severe
// impact among the changes, ImpactNone when nothing changed.
type Report struct {
	Changes []Change `json:"changes,omitempty"`
	Impact  Impact   `json:"impact"`
}

var exactTypes = map[string]FileType{
	"CMakeLists.txt": TypeBuildConfig,
	"configure.ac":   TypeBuildConfig,
	"configure.in":   TypeBuildConfig,
	"Makefile.in":    TypeBuildConfig,
	"Makefile.am":    TypeBuildConfig,
	"meson.build":    TypeBuildConfig,
	"BUILD":          TypeBuildConfig,
	"BUILD.bazel":    TypeBuildConfig,

	"conanfile.txt":            TypeManifest,
	"conanfile.py":             TypeManifest,
	"vcpkg.json":               TypeManifest,
	"vcpkg-configuration.json": TypeManifest,
	"requirements.txt":         TypeManifest,
	"setup.py":                 TypeManifest,
	"pyproject.toml":           TypeManifest,
	"Cargo.toml":               TypeManifest,
	"package.json":             TypeManifest,
}

var suffixTypes = []struct {
	suffix string
	typ    FileType
}{
	{".cmake", TypeBuildConfig},
	{".pc.in", TypePackageConfig},
	{".pc", TypePackageConfig},
}

// classifyFile maps a file name to its dependency file type. The second
// return is false for untracked names.
func classifyFile(name string) (FileType, bool) {
	if typ, ok := exactTypes[name]; ok {
		return typ, true
	}
	for _, s := range suffixTypes {
		if strings.HasSuffix(name, s.suffix) {
			return s.typ, true
		}
	}
	return TypeUnknown, false
}

func (t FileType) impact() Impact {
	switch t {
	case TypeBuildConfig:
		return ImpactFullRebuild
	case TypePackageConfig:
		return ImpactPackageSpecific
	case TypeManifest:
		return ImpactDependencyUpdate
	default:
		return ImpactNone
	}
}

// recommendationFor phrases the follow-up action for a changed file.
func recommendationFor(name string, typ FileType) string {
	switch typ {
	case TypeBuildConfig:
		switch {
		case name == "CMakeLists.txt":
			return "Run cmake -S . -B build && make clean && make"
		case name == "configure.ac" || name == "configure.in":
			return "Run autoreconf -fiv && ./configure && make clean && make"
		case name == "meson.build":
			return "Run meson setup --reconfigure build && ninja -C build clean && ninja -C build"
		case name == "BUILD" || name == "BUILD.bazel":
			return "Regenerate build files and rebuild the project"
		case strings.HasPrefix(name, "Find") && strings.HasSuffix(name, ".cmake"):
			pkg := strings.TrimSuffix(strings.TrimPrefix(name, "Find"), ".cmake")
			return "Clear the CMake cache and rebuild targets using " + pkg
		case strings.HasSuffix(name, ".cmake"):
			return "Clear the CMake cache and rebuild"
		default:
			return "Clean and rebuild the project"
		}
	case TypePackageConfig:
		if strings.HasSuffix(name, ".pc") {
			return "Refresh the pkg-config cache and rebuild " + strings.TrimSuffix(name, ".pc") + " dependents"
		}
		return "Regenerate package configuration and rebuild affected targets"
	case TypeManifest:
		switch {
		case strings.HasPrefix(name, "conanfile"):
			return "Run conan install && cmake -S . -B build && make"
		case strings.HasPrefix(name, "vcpkg"):
			return "Run vcpkg integrate install && cmake -S . -B build && make"
		case name == "requirements.txt":
			return "Run pip install -r requirements.txt and rebuild"
		case name == "package.json":
			return "Run npm install and rebuild"
		case name == "Cargo.toml":
			return "Run cargo build"
		default:
			return "Update dependencies and rebuild"
		}
	default:
		return "Manual investigation required"
	}
}

// diff compares two snapshots by path. A path counts as modified only when
// its content hash differs; a newer mtime alone is not a change.
func diff(prior, fresh Snapshot) []Change {
	var changes []Change
	for path, fp := range fresh {
		old, ok := prior[path]
		switch {
		case !ok:
			changes = append(changes, newChange(path, ChangeAdded))
		case old.SHA256 != fp.SHA256:
			changes = append(changes, newChange(path, ChangeModified))
		}
	}
	for path := range prior {
		if _, ok := fresh[path]; !ok {
			changes = append(changes, newChange(path, ChangeRemoved))
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func newChange(path string, kind ChangeKind) Change {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	typ, _ := classifyFile(name)
	return Change{
		Path:           path,
		Kind:           kind,
		Type:           typ,
		Impact:         typ.impact(),
		Recommendation: recommendationFor(name, typ),
	}
}

func highestImpact(changes []Change) Impact {
	highest := ImpactNone
	for _, c := range changes {
		if c.Impact.Outranks(highest) {
			highest = c.Impact
		}
	}
	return highest
}
