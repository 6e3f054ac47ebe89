package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPruneOldFilesKeepsOnlyMostRecent(t *testing.T) {
	dir := t.TempDir()
	stamps := []string{
		"20260101T000000Z", "20260102T000000Z", "20260103T000000Z",
		"20260104T000000Z", "20260105T000000Z",
	}
	for _, s := range stamps {
		touch(t, filepath.Join(dir, "fedi-"+s+".jsonl"))
		touch(t, filepath.Join(dir, "fedi-"+s+".log"))
	}

	if err := pruneOldFiles(dir, "fedi", 3); err != nil {
		t.Fatalf("pruneOldFiles failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	// One slot is left free for the pair the new process start creates, so
	// 2 old pairs remain and 3 pairs exist once the new one is written.
	if len(entries) != 4 {
		t.Fatalf("expected 2 pairs (4 files) remaining, got %d", len(entries))
	}

	for _, removed := range stamps[:3] {
		if _, err := os.Stat(filepath.Join(dir, "fedi-"+removed+".jsonl")); !os.IsNotExist(err) {
			t.Errorf("expected %s.jsonl to be pruned", removed)
		}
	}
	for _, kept := range stamps[3:] {
		if _, err := os.Stat(filepath.Join(dir, "fedi-"+kept+".jsonl")); err != nil {
			t.Errorf("expected %s.jsonl to be kept: %v", kept, err)
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}
