package procscan

import (
	"os"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/errors"
)

type fakeScanner struct {
	entries []Entry
	err     error
}

func (f fakeScanner) Snapshot() ([]Entry, error) { return f.entries, f.err }

func fixedDetector(entries []Entry, now time.Time) *ScanDetector {
	d := NewDetector(fakeScanner{entries: entries})
	d.now = func() time.Time { return now }
	return d
}

func TestDetectBuildProcesses(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{PID: 300, Name: "make", Cmdline: "make -j8 all", StartedAt: now.Add(-42 * time.Second)},
		{PID: 301, Name: "bash", Cmdline: "bash"},
		{PID: 302, Name: "gcc", Cmdline: "gcc -c foo.c", StartedAt: now.Add(-3 * time.Second)},
	}
	conflicts, err := fixedDetector(entries, now).Detect(nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d: %+v", len(conflicts), conflicts)
	}
	if conflicts[0].PID != 300 || conflicts[0].Elapsed != "42s" {
		t.Errorf("first conflict = %+v, want pid 300 elapsed 42s", conflicts[0])
	}
	if conflicts[1].Name != "gcc" {
		t.Errorf("second conflict = %+v, want gcc", conflicts[1])
	}
}

func TestDetectAmbiguousNamesNeedBuildCmdline(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{PID: 400, Name: "cc", Cmdline: "cc something-unrelated", StartedAt: now},
		{PID: 401, Name: "cc", Cmdline: "cc -c foo.c (cmake step)", StartedAt: now},
		{PID: 402, Name: "ld", Cmdline: "ld --gc-sections", StartedAt: now},
		{PID: 403, Name: "as", Cmdline: "make invoked as step", StartedAt: now},
	}
	conflicts, err := fixedDetector(entries, now).Detect(nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	var pids []int32
	for _, c := range conflicts {
		pids = append(pids, c.PID)
	}
	if len(pids) != 2 || pids[0] != 401 || pids[1] != 403 {
		t.Errorf("expected pids [401 403], got %v", pids)
	}
}

func TestDetectExcludesSelfAndParent(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{PID: int32(os.Getpid()), Name: "make", Cmdline: "make all", StartedAt: now},
		{PID: int32(os.Getppid()), Name: "cmake", Cmdline: "cmake ..", StartedAt: now},
	}
	conflicts, err := fixedDetector(entries, now).Detect(nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("own and parent pids must be excluded, got %+v", conflicts)
	}
}

func TestDetectExcludesOwnedTrees(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{PID: 100, PPID: 1, Name: "make", Cmdline: "make all", StartedAt: now},
		{PID: 101, PPID: 100, Name: "gcc", Cmdline: "gcc -c a.c", StartedAt: now},
		{PID: 102, PPID: 101, Name: "collect2", Cmdline: "collect2 ...", StartedAt: now},
		{PID: 200, PPID: 1, Name: "gcc", Cmdline: "gcc -c other.c", StartedAt: now},
	}
	conflicts, err := fixedDetector(entries, now).Detect([]int32{100})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].PID != 200 {
		t.Errorf("expected only pid 200 outside the owned tree, got %+v", conflicts)
	}
}

func TestDetectTruncatesLongCmdlines(t *testing.T) {
	now := time.Now()
	long := "make " + strings.Repeat("x", 200)
	entries := []Entry{{PID: 500, Name: "make", Cmdline: long, StartedAt: now}}
	conflicts, err := fixedDetector(entries, now).Detect(nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	got := conflicts[0].Cmdline
	if len(got) != cmdlineDisplayLimit+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("cmdline not truncated: len=%d", len(got))
	}
}

func TestDetectScannerError(t *testing.T) {
	d := NewDetector(fakeScanner{err: os.ErrPermission})
	_, err := d.Detect(nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsCategory(err, errors.CategoryProcess) {
		t.Errorf("error category = %v, want process", errors.GetCategory(err))
	}
}

func TestNoopDetector(t *testing.T) {
	conflicts, err := NoopDetector{}.Detect([]int32{1, 2, 3})
	if err != nil || conflicts != nil {
		t.Errorf("noop detector should be silent, got %v %v", conflicts, err)
	}
}
