package whisper

import (
	"path/filepath"
	"testing"
)

func TestNewRequiresModel(t *testing.T) {
	if _, err := New("", "en"); err == nil {
		t.Error("New with empty path should fail")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing.bin"), "en"); err == nil {
		t.Error("New with a missing model file should fail")
	}
}
