package wire

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSpillPolicyNeverCreatesDirUntilFirstSpill(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "uploads")

	policy := &SpillPolicy{Threshold: 1 << 20, Dir: dir}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("temp dir exists before any spill: %v", err)
	}

	f, _, err := policy.spillFile()
	if err != nil {
		t.Fatalf("spillFile failed: %v", err)
	}
	f.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir not created after a spill: %v", err)
	}
}
