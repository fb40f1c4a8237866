package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatingFile writes log lines to <dir>/YYYY_MM_DD_<name>, starting a new
// file when the day changes or every splitLines lines
// (<dir>/YYYY_MM_DD_<name>.<n>).
type rotatingFile struct {
	mu         sync.Mutex
	dir        string
	name       string
	splitLines int64
	now        func() time.Time

	f     *os.File
	today int
	count int64
}

func newRotatingFile(path string, splitLines int64, now func() time.Time) (*rotatingFile, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, fmt.Errorf("log output %q has no file name", path)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	r := &rotatingFile{
		dir:        dir,
		name:       name,
		splitLines: splitLines,
		now:        now,
	}

	t := now()
	if err := r.open(r.fileName(t, 0)); err != nil {
		return nil, err
	}
	r.today = t.YearDay()
	return r, nil
}

func (r *rotatingFile) fileName(t time.Time, part int64) string {
	base := fmt.Sprintf("%d_%02d_%02d_%s", t.Year(), int(t.Month()), t.Day(), r.name)
	if part > 0 {
		base = fmt.Sprintf("%s.%d", base, part)
	}
	return filepath.Join(r.dir, base)
}

func (r *rotatingFile) open(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	r.f = f
	return nil
}

// Write appends one formatted line, rotating first if needed.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return 0, os.ErrClosed
	}

	t := r.now()
	r.count++
	switch {
	case t.YearDay() != r.today:
		r.today = t.YearDay()
		r.count = 1
		if err := r.reopen(r.fileName(t, 0)); err != nil {
			return 0, err
		}
	case r.splitLines > 0 && r.count > r.splitLines && (r.count-1)%r.splitLines == 0:
		if err := r.reopen(r.fileName(t, (r.count-1)/r.splitLines)); err != nil {
			return 0, err
		}
	}

	return r.f.Write(p)
}

func (r *rotatingFile) reopen(path string) error {
	_ = r.f.Sync()
	if err := r.f.Close(); err != nil {
		return err
	}
	return r.open(path)
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	_ = r.f.Sync()
	err := r.f.Close()
	r.f = nil
	return err
}
