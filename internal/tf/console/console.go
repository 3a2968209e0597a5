// Package console follows the game's console.log file and yields newly
// appended complete lines. The file is written by the game process and can be
// truncated, rotated or temporarily missing; the tailer re-derives its state
// on the next poll rather than failing.
package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultPollInterval   = time.Millisecond * 250
	defaultMissingBackoff = time.Second * 5
)

var ErrRead = errors.New("failed to read console.log")

// Receiver accepts complete log lines as they are appended.
type Receiver interface {
	Send(line string)
}

// Tailer tracks a byte offset into the log file. Only whole lines are
// consumed: a partially written trailing line stays in the file until a later
// poll sees its terminator.
type Tailer struct {
	path           string
	pollInterval   time.Duration
	missingBackoff time.Duration
	offset         int64
}

func NewTailer(path string) *Tailer {
	return &Tailer{
		path:           path,
		pollInterval:   defaultPollInterval,
		missingBackoff: defaultMissingBackoff,
	}
}

// Start polls until ctx is cancelled. A missing file waits out the longer
// backoff; everything else retries on the regular interval.
func (t *Tailer) Start(ctx context.Context, receiver Receiver) {
	for {
		wait := t.pollInterval

		if err := t.poll(receiver); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				wait = t.missingBackoff
			} else {
				slog.Warn("Error reading console.log, resetting offset",
					slog.String("path", t.path), slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// poll performs one read cycle. On any mid-read failure the offset resets to
// zero and the next poll re-derives state, accepting duplicated or skipped
// lines as the recovery cost.
func (t *Tailer) poll(receiver Receiver) error {
	stat, errStat := os.Stat(t.path)
	if errStat != nil {
		if errors.Is(errStat, fs.ErrNotExist) {
			return errStat
		}

		t.offset = 0

		return errors.Join(errStat, ErrRead)
	}

	size := stat.Size()
	if size < t.offset {
		// Truncated or rotated underneath us. Start over.
		t.offset = 0
	}

	if size == t.offset {
		return nil
	}

	file, errOpen := os.Open(t.path)
	if errOpen != nil {
		t.offset = 0

		return errors.Join(errOpen, ErrRead)
	}
	defer file.Close()

	if _, errSeek := file.Seek(t.offset, io.SeekStart); errSeek != nil {
		t.offset = 0

		return errors.Join(errSeek, ErrRead)
	}

	delta := make([]byte, size-t.offset)
	if _, errReadFull := io.ReadFull(file, delta); errReadFull != nil {
		t.offset = 0

		return errors.Join(errReadFull, ErrRead)
	}

	end := bytes.LastIndexByte(delta, '\n')
	if end < 0 {
		return nil
	}

	consumed := delta[:end+1]
	t.offset += int64(len(consumed))

	for line := range bytes.Lines(consumed) {
		text := strings.TrimSuffix(strings.TrimSuffix(string(line), "\n"), "\r")
		if text == "" {
			continue
		}

		// Player names can contain arbitrary bytes; decode lossily rather
		// than dropping the line.
		receiver.Send(strings.ToValidUTF8(text, "�"))
	}

	return nil
}
