package version

import "testing"

func TestDefaultsAreNeverEmpty(t *testing.T) {
	// The version command prints these verbatim; a build without ldflags
	// must still produce "unknown", not an empty string.
	for name, v := range map[string]string{
		"Version":   Version,
		"BuildTime": BuildTime,
		"GitCommit": GitCommit,
	} {
		if v == "" {
			t.Errorf("%s is empty", name)
		}
	}
}
