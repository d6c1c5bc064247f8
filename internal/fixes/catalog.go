package fixes

import (
	"regexp"

	"git.home.luguber.info/inful/buildmon/internal/classify"
)

// entry is one catalog pattern. Entries are ordered most specific first and
// matching stops at the first entry that clears the confidence floor.
type entry struct {
	id         string
	signature  *regexp.Regexp
	categories []classify.Category // empty matches any category
	text       string
	commands   map[Manager][]string // ManagerGeneric must be present
	fixType    FixType
	base       int
	toolchain  bool // remediates headers, libraries, or linking
}

func (e entry) applies(c classify.Category) bool {
	if len(e.categories) == 0 {
		return true
	}
	for _, want := range e.categories {
		if c == want {
			return true
		}
	}
	return false
}

func (e entry) commandsFor(m Manager) []string {
	if cmds, ok := e.commands[m]; ok {
		return cmds
	}
	return e.commands[ManagerGeneric]
}

var catalog = []entry{
	{
		id:         "missing_openssl_headers",
		signature:  regexp.MustCompile(`(?i)openssl/[\w.]+: no such file or directory|#include\s*[<"]?openssl/.*not found`),
		categories: []classify.Category{classify.CategoryHeader},
		text:       "Install OpenSSL development packages",
		commands: map[Manager][]string{
			ManagerApt: {
				"sudo apt update",
				"sudo apt install -y libssl-dev openssl",
				"pkg-config --modversion openssl",
			},
			ManagerDNF: {
				"sudo dnf install -y openssl-devel",
				"pkg-config --modversion openssl",
			},
			ManagerBrew: {
				"brew install openssl@3",
				"brew --prefix openssl@3",
			},
			ManagerGeneric: {
				"# Install the OpenSSL development package for your platform",
				"pkg-config --modversion openssl",
			},
		},
		fixType:   FixQuick,
		base:      95,
		toolchain: true,
	},
	{
		id:         "missing_zlib_headers",
		signature:  regexp.MustCompile(`(?i)zlib\.h: no such file or directory`),
		categories: []classify.Category{classify.CategoryHeader},
		text:       "Install the zlib development package",
		commands: map[Manager][]string{
			ManagerApt: {
				"sudo apt update",
				"sudo apt install -y zlib1g-dev",
			},
			ManagerDNF: {
				"sudo dnf install -y zlib-devel",
			},
			ManagerBrew: {
				"brew install zlib",
			},
			ManagerGeneric: {
				"# Install the zlib development package for your platform",
			},
		},
		fixType:   FixQuick,
		base:      95,
		toolchain: true,
	},
	{
		id:         "missing_pthread",
		signature:  regexp.MustCompile("(?i)undefined reference to `pthread_|cannot find -lpthread"),
		categories: []classify.Category{classify.CategoryLinker},
		text:       "Link the pthread library or install libc development packages",
		commands: map[Manager][]string{
			ManagerApt: {
				"sudo apt install -y libc6-dev",
				"# Link with -pthread: target_link_libraries(<target> Threads::Threads)",
			},
			ManagerDNF: {
				"sudo dnf install -y glibc-devel",
				"# Link with -pthread: target_link_libraries(<target> Threads::Threads)",
			},
			ManagerGeneric: {
				"# Link with -pthread: target_link_libraries(<target> Threads::Threads)",
			},
		},
		fixType:   FixMedium,
		base:      85,
		toolchain: true,
	},
	{
		id:         "cmake_missing_package",
		signature:  regexp.MustCompile(`(?i)could not find (?:package\s+\w+|a package configuration file|\w+\s+\(missing)`),
		categories: []classify.Category{classify.CategoryCMake},
		text:       "Install the missing package and clear the CMake cache",
		commands: map[Manager][]string{
			ManagerApt: {
				"# Install the missing development package, for example:",
				"sudo apt install -y libssl-dev",
				"rm -f build/CMakeCache.txt",
				"cmake ..",
			},
			ManagerDNF: {
				"# Install the missing development package, for example:",
				"sudo dnf install -y openssl-devel",
				"rm -f build/CMakeCache.txt",
				"cmake ..",
			},
			ManagerBrew: {
				"# Install the missing package, for example:",
				"brew install openssl@3",
				"rm -f build/CMakeCache.txt",
				"cmake ..",
			},
			ManagerGeneric: {
				"# Install the missing package's development files",
				"rm -f build/CMakeCache.txt",
				"cmake ..",
			},
		},
		fixType:   FixMedium,
		base:      88,
		toolchain: true,
	},
	{
		id:         "cmake_prefix_path",
		signature:  regexp.MustCompile(`(?i)cmake_prefix_path`),
		categories: []classify.Category{classify.CategoryCMake},
		text:       "Point CMAKE_PREFIX_PATH at the library install prefix",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"export CMAKE_PREFIX_PATH=/usr/local:/opt/local:$CMAKE_PREFIX_PATH",
				"cmake ..",
				"# Or pass -DCMAKE_PREFIX_PATH=/path/to/libraries to cmake",
			},
		},
		fixType:   FixMedium,
		base:      78,
		toolchain: true,
	},
	{
		id:         "cmake_build_type",
		signature:  regexp.MustCompile(`(?i)cmake_build_type`),
		categories: []classify.Category{classify.CategoryCMake},
		text:       "Set CMAKE_BUILD_TYPE explicitly",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"cmake -DCMAKE_BUILD_TYPE=Release ..",
				"# Or for debug builds: cmake -DCMAKE_BUILD_TYPE=Debug ..",
			},
		},
		fixType: FixQuick,
		base:    90,
	},
	{
		id:         "undefined_reference",
		signature:  regexp.MustCompile(`(?i)undefined reference to|undefined symbol`),
		categories: []classify.Category{classify.CategoryLinker},
		text:       "Link the library that provides the missing symbol",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"# Check whether the providing library is installed:",
				"pkg-config --list-all",
				"# Then link it: target_link_libraries(<target> <library>)",
			},
		},
		fixType:   FixMedium,
		base:      70,
		toolchain: true,
	},
	{
		id:         "multiple_definition",
		signature:  regexp.MustCompile(`(?i)multiple definition of|duplicate symbol`),
		categories: []classify.Category{classify.CategoryLinker},
		text:       "Remove the duplicate definition or guard the header",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"# Locate the duplicate definition:",
				"grep -rn <symbol> src/",
				"# Add include guards or declare header-only functions inline",
			},
		},
		fixType:   FixComplex,
		base:      75,
		toolchain: true,
	},
	{
		id:        "make_no_rule",
		signature: regexp.MustCompile(`(?i)no rule to make target|no targets specified and no makefile found`),
		text:      "Regenerate the Makefile or check the target name",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"cmake ..",
				"# List available targets:",
				"make help",
			},
		},
		fixType: FixQuick,
		base:    88,
	},
	{
		id:        "permission_denied",
		signature: regexp.MustCompile(`(?i)permission denied`),
		text:      "Fix file and directory permissions",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"sudo chown -R $USER:$USER .",
				"chmod -R 755 .",
			},
		},
		fixType: FixQuick,
		base:    92,
	},
	{
		id:        "disk_space",
		signature: regexp.MustCompile(`(?i)no space left on device|disk full`),
		text:      "Free up disk space",
		commands: map[Manager][]string{
			ManagerApt: {
				"df -h .",
				"du -h --max-depth=1 .",
				"sudo apt autoremove && sudo apt autoclean",
			},
			ManagerDNF: {
				"df -h .",
				"du -h --max-depth=1 .",
				"sudo dnf clean all",
			},
			ManagerGeneric: {
				"df -h .",
				"du -h --max-depth=1 .",
				"# Clear the build tree: rm -rf build/*",
			},
		},
		fixType: FixMedium,
		base:    95,
	},
	{
		id:        "memory_exhausted",
		signature: regexp.MustCompile(`(?i)virtual memory exhausted|out of memory|cannot allocate memory`),
		text:      "Lower the parallel job count",
		commands: map[Manager][]string{
			ManagerGeneric: {
				"# Rerun with fewer parallel jobs:",
				"make -j2",
			},
		},
		fixType: FixQuick,
		base:    90,
	},
}
