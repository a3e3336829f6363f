package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/meterthing/internal/obis"
)

// Recording is the YAML layout read by FileSource.
//
//	readings:
//	  - registers:
//	      - {code: 1.0.1.8.0.255, type: number, number: 1234.5, unit: Wh}
//	      - {code: 0.0.1.0.0.255, type: bytes, hex: "07e8030f050d2d1e32ffc480"}
//	  - error: checksum mismatch
type Recording struct {
	Readings []Message `yaml:"readings"`
}

// FileSource replays a recorded sequence of polls, one per interval, and then
// reports io.EOF.
//
// It is used for commissioning and demos without a live meter. Polls are
// decoded when the file is loaded, but a bad poll is only reported when it is
// reached, the same way a live decoder failure would be.
type FileSource struct {
	results  []Result
	pos      int
	interval time.Duration
	last     time.Time
}

// LoadFile reads a recording from path.
func LoadFile(path string, interval time.Duration) (*FileSource, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading recording %s: %w", path, err)
	}
	return ParseRecording(data, interval)
}

// ParseRecording builds a FileSource from YAML data.
func ParseRecording(data []byte, interval time.Duration) (*FileSource, error) {
	var rec Recording
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: recording: %w", ErrDecode, err)
	}

	fs := &FileSource{
		results:  make([]Result, 0, len(rec.Readings)),
		interval: interval,
	}
	for _, msg := range rec.Readings {
		r, err := msg.Reading()
		fs.results = append(fs.results, Result{Reading: r, Err: err})
	}
	return fs, nil
}

// Len returns the number of recorded polls.
func (f *FileSource) Len() int { return len(f.results) }

// Next implements Source. The first poll is returned immediately; later polls
// wait until interval has passed since the previous one.
func (f *FileSource) Next(ctx context.Context) (obis.Reading, error) {
	if err := ctx.Err(); err != nil {
		return obis.Reading{}, err
	}
	if f.pos >= len(f.results) {
		return obis.Reading{}, io.EOF
	}

	if !f.last.IsZero() && f.interval > 0 {
		wait := time.Until(f.last.Add(f.interval))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return obis.Reading{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	res := f.results[f.pos]
	f.pos++
	f.last = time.Now()
	return res.Reading, res.Err
}
