package history

import "testing"

func TestKeyCanonicalization(t *testing.T) {
	cases := []struct {
		name    string
		targets []string
		jobs    int
		want    string
	}{
		{"empty", nil, 4, "full_build_j4"},
		{"all", []string{"all"}, 8, "full_build_j8"},
		{"install", []string{"install"}, 2, "full_build_j2"},
		{"all among others", []string{"clean", "all"}, 4, "full_build_j4"},
		{"fast package", []string{"package_websocket/fast"}, 4, "package_websocket_j4"},
		{"fast without prefix", []string{"websocket/fast"}, 4, "package_websocket_j4"},
		{"single target", []string{"docs"}, 4, "target_docs_j4"},
		{"multi package", []string{"package_b", "package_a"}, 4, "multi_package_2_j4"},
		{"multi mixed", []string{"a", "package_b"}, 4, "multi_target_2_j4"},
		{"multi plain", []string{"b", "a", "c"}, 6, "multi_target_3_j6"},
	}
	for _, tc := range cases {
		if got := Key(tc.targets, tc.jobs); got != tc.want {
			t.Errorf("%s: Key(%v, %d) = %q, want %q", tc.name, tc.targets, tc.jobs, got, tc.want)
		}
	}
}

func TestKeyEncodesParallelism(t *testing.T) {
	if Key(nil, 4) == Key(nil, 8) {
		t.Fatal("keys with different job counts must differ")
	}
}

func TestKeyOrderInsensitive(t *testing.T) {
	if Key([]string{"a", "b"}, 4) != Key([]string{"b", "a"}, 4) {
		t.Fatal("target order must not change the key")
	}
}

func TestKeyDoesNotMutateInput(t *testing.T) {
	targets := []string{"z", "a"}
	Key(targets, 4)
	if targets[0] != "z" || targets[1] != "a" {
		t.Fatalf("input mutated: %v", targets)
	}
}
