package camera

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirDevice replays the JPEG files of a directory in name order, looping,
// at the requested frame rate. Kiosks without a camera and the development
// simulator use it.
type DirDevice struct {
	Dir    string
	Logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Open starts replaying. A directory whose frames all become unreadable
// fails the stream.
func (d *DirDevice) Open(ctx context.Context, c Constraints, sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return &Error{Kind: KindBusy, Err: fmt.Errorf("directory device %s already open", d.Dir)}
	}

	files, err := jpegFiles(d.Dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &Error{Kind: KindNotFound, Err: fmt.Errorf("no jpeg frames in %s: %w", d.Dir, fs.ErrNotExist)}
	}

	fps := c.FPS
	if fps <= 0 {
		fps = DefaultConstraints().FPS
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.replay(runCtx, d.done, files, time.Second/time.Duration(fps), sink, logger)
	return nil
}

func (d *DirDevice) replay(ctx context.Context, done chan<- struct{}, files []string, period time.Duration, sink Sink, logger *slog.Logger) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	failures := 0
	for i := 0; ; i = (i + 1) % len(files) {
		data, err := os.ReadFile(files[i])
		if err != nil {
			logger.Warn("skipping unreadable frame", "file", files[i], "error", err)
			if failures++; failures == len(files) {
				if sink.Fail != nil {
					sink.Fail(fmt.Errorf("replay %s: %w", d.Dir, err))
				}
				return
			}
		} else {
			failures = 0
			sink.Frame(data)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops the replay and waits for it.
func (d *DirDevice) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func jpegFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
