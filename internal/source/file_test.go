package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/meterthing/internal/obis"
)

const recording = `
readings:
  - registers:
      - {code: 1.0.1.8.0.255, type: number, number: 1000, unit: Wh}
      - {code: 0.0.96.1.0.255, type: bytes, hex: "534e3132333435"}
  - error: checksum mismatch
  - registers:
      - {code: 1.0.1.8.0.255, type: number, number: 1010, unit: Wh}
`

func TestFileSource_Replay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.yaml")
	if err := os.WriteFile(path, []byte(recording), 0o600); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}

	src, err := LoadFile(path, 0)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if src.Len() != 3 {
		t.Errorf("Len() = %d, want 3", src.Len())
	}

	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() #1 error = %v", err)
	}
	if first.Len() != 2 {
		t.Errorf("first reading has %d registers, want 2", first.Len())
	}

	if _, err := src.Next(ctx); !errors.Is(err, ErrDecode) {
		t.Errorf("Next() #2 error = %v, want %v", err, ErrDecode)
	}

	third, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() #3 error = %v", err)
	}
	if v := mustGet(t, third, "1.0.1.8.0.255"); !v.Equal(obis.Number(1010, "Wh")) {
		t.Errorf("energy = %v, want 1010 Wh", v)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end error = %v, want %v", err, io.EOF)
	}
}

func TestFileSource_Interval(t *testing.T) {
	src, err := ParseRecording([]byte(recording), 40*time.Millisecond)
	if err != nil {
		t.Fatalf("ParseRecording() error = %v", err)
	}

	ctx := context.Background()
	start := time.Now()
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 40*time.Millisecond {
		t.Errorf("first Next() took %v, want no wait", elapsed)
	}

	_, _ = src.Next(ctx)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second Next() after %v, want at least the interval", elapsed)
	}
}

func TestFileSource_CancelWhileWaiting(t *testing.T) {
	src, err := ParseRecording([]byte(recording), time.Hour)
	if err != nil {
		t.Fatalf("ParseRecording() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() after cancel error = %v, want %v", err, context.Canceled)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}

	if _, err := ParseRecording([]byte("readings: [:"), 0); !errors.Is(err, ErrDecode) {
		t.Errorf("ParseRecording() error = %v, want %v", err, ErrDecode)
	}
}
