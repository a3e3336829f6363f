package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/meterthing/internal/obis"
)

func energyReading(t *testing.T, wh float64) obis.Reading {
	t.Helper()
	r, err := obis.NewReading(obis.Entry{Code: obis.MustParse("1.0.1.8.0.255"), Value: obis.Number(wh, "Wh")})
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}
	return r
}

func TestStreamSource_Formats(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatCBOR} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			for _, wh := range []float64{100, 101} {
				payload, err := Encode(format, energyReading(t, wh))
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				buf.Write(payload)
				if format == FormatJSON {
					buf.WriteByte('\n')
				}
			}

			src, err := NewStreamSource(&buf, format)
			if err != nil {
				t.Fatalf("NewStreamSource() error = %v", err)
			}
			ctx := context.Background()

			for _, want := range []float64{100, 101} {
				r, err := src.Next(ctx)
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				if v := mustGet(t, r, "1.0.1.8.0.255"); !v.Equal(obis.Number(want, "Wh")) {
					t.Errorf("energy = %v, want %v Wh", v, want)
				}
			}

			if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
				t.Errorf("Next() at end error = %v, want %v", err, io.EOF)
			}
		})
	}
}

func TestStreamSource_DecoderErrorContinues(t *testing.T) {
	stream := `{"error":"checksum mismatch"}
{"registers":[{"code":"1.0.1.8.0.255","type":"number","number":5,"unit":"Wh"}]}
`
	src, err := NewStreamSource(strings.NewReader(stream), FormatJSON)
	if err != nil {
		t.Fatalf("NewStreamSource() error = %v", err)
	}
	ctx := context.Background()

	if _, err := src.Next(ctx); !errors.Is(err, ErrDecode) {
		t.Errorf("Next() #1 error = %v, want %v", err, ErrDecode)
	}

	r, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() #2 error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestStreamSource_CorruptStreamEnds(t *testing.T) {
	src, err := NewStreamSource(strings.NewReader(`{"registers": [}`+"\n"+`{"registers":[]}`), FormatJSON)
	if err != nil {
		t.Fatalf("NewStreamSource() error = %v", err)
	}
	ctx := context.Background()

	if _, err := src.Next(ctx); !errors.Is(err, ErrDecode) {
		t.Errorf("Next() #1 error = %v, want %v", err, ErrDecode)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() #2 error = %v, want %v", err, io.EOF)
	}
}

func TestStreamSource_UnknownFormat(t *testing.T) {
	if _, err := NewStreamSource(strings.NewReader(""), Format("xml")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("NewStreamSource() error = %v, want %v", err, ErrUnknownFormat)
	}
}

func TestStreamSource_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src, err := NewStreamSource(pr, FormatJSON)
	if err != nil {
		t.Fatalf("NewStreamSource() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestStreamSource_Close(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src, err := NewStreamSource(pr, FormatJSON)
	if err != nil {
		t.Fatalf("NewStreamSource() error = %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after Close error = %v, want %v", err, io.EOF)
	}
}
