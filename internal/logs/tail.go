// Package logs reads the daemon log file for the CLI logs command. The
// daemon appends plain lines; readers track a byte cursor so a follow loop
// only ever sees each line once.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Cursor marks a byte position in the log file. The zero cursor reads from
// the start of the file.
type Cursor struct {
	Offset int64
}

const maxLineBytes = 1024 * 1024

// LastLines returns up to n trailing lines and a cursor positioned at the
// end of the file. A missing file yields no lines and the zero cursor.
func LastLines(path string, n int) ([]string, Cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Cursor{}, nil
		}
		return nil, Cursor{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, 0, n)
	}
	scanner := newScanner(file)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[1:], scanner.Text())
		} else {
			ring = append(ring, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, Cursor{}, fmt.Errorf("read log file: %w", err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("seek log file: %w", err)
	}
	return ring, Cursor{Offset: end}, nil
}

// ReadFrom returns every complete line written after the cursor and the
// advanced cursor. A cursor past the current file size is clamped to the
// end, which covers truncation on log rotation.
func ReadFrom(path string, cur Cursor) ([]string, Cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Cursor{}, nil
		}
		return nil, cur, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, cur, fmt.Errorf("stat log file: %w", err)
	}
	offset := cur.Offset
	if offset < 0 || offset > info.Size() {
		offset = info.Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, cur, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	scanner := newScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, cur, fmt.Errorf("read log file: %w", err)
	}
	pos, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, cur, fmt.Errorf("advance log cursor: %w", err)
	}
	return lines, Cursor{Offset: pos}, nil
}

// Follow polls the file from the cursor and hands each new line to emit
// until the context ends. It returns the context error on shutdown so
// callers can distinguish a clean stop from a read failure.
func Follow(ctx context.Context, path string, cur Cursor, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		lines, next, err := ReadFrom(path, cur)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		cur = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
