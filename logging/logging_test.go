package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_RotatesPastLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.log")
	w, err := NewRotatingWriter(path, 16)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("0123456789abcdefXYZ\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := w.Write([]byte("after\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if !strings.HasPrefix(string(backup), "0123456789") {
		t.Fatalf("unexpected backup content %q", backup)
	}
	current, _ := os.ReadFile(path)
	if string(current) != "after\n" {
		t.Fatalf("unexpected current content %q", current)
	}
}

func TestDebugf_OnlyWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	defer SetVerbose(false)

	SetVerbose(false)
	if Verbose() {
		t.Fatal("expected verbose off")
	}
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	SetVerbose(true)
	if !Verbose() {
		t.Fatal("expected verbose on")
	}
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "[debug] shown 2") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
