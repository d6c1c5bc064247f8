package resource

import "testing"

func TestHumanizeMemory(t *testing.T) {
	cases := []struct {
		bytes uint64
		want  string
	}{
		{512 * mb, "512m"},
		{1023 * mb, "1023m"},
		{1024 * mb, "1g"},
		{1536 * mb, "1.5g"},
		{2048 * mb, "2g"},
		{2355 * mb, "2.3g"},
		{0, "0m"},
	}
	for _, tc := range cases {
		if got := HumanizeMemory(tc.bytes); got != tc.want {
			t.Errorf("HumanizeMemory(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestFormatUsage(t *testing.T) {
	cases := []struct {
		cpu    float64
		memory uint64
		want   string
	}{
		{85.4, 1536 * mb, "85%/1.5g"},
		{75, 512 * mb, "75%/512m"},
		{60.6, 2048 * mb, "61%/2g"},
		{0, 0, "0%/0m"},
	}
	for _, tc := range cases {
		if got := FormatUsage(tc.cpu, tc.memory); got != tc.want {
			t.Errorf("FormatUsage(%v, %d) = %q, want %q", tc.cpu, tc.memory, got, tc.want)
		}
	}
}
