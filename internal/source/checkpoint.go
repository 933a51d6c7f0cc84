package source

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nxadm/tail"

	"fatalwatch/pkg/logger"
)

// Start positions for a tailing source.
const (
	StartAtBeginning = "start"
	StartAtEnd       = "end"
	StartAtOffset    = "offset"
)

// Checkpoints persists per-file read offsets as JSON so a restarted tail
// resumes after the last handled line.
type Checkpoints struct {
	mu      sync.Mutex
	offsets map[string]int64
	file    string
	dirty   bool

	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewCheckpoints returns a store backed by file. An empty file name keeps
// offsets in memory only.
func NewCheckpoints(file string) *Checkpoints {
	return &Checkpoints{
		offsets: make(map[string]int64),
		file:    file,
		stop:    make(chan struct{}),
	}
}

// Load reads offsets from disk. A missing file is not an error.
func (c *Checkpoints) Load() error {
	if c.file == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &c.offsets)
}

// Save writes offsets to disk if they changed since the last save.
func (c *Checkpoints) Save() error {
	if c.file == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.offsets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.file), 0o755); err != nil {
		return err
	}
	tmp := c.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.file); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Start saves periodically until Stop.
func (c *Checkpoints) Start(interval time.Duration) {
	if c.file == "" || interval <= 0 {
		return
	}
	c.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-c.ticker.C:
				if err := c.Save(); err != nil {
					logger.Get().Warnw("failed to save checkpoints", "file", c.file, "error", err)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends periodic saving and does a final save.
func (c *Checkpoints) Stop() error {
	c.once.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.stop)
	})
	return c.Save()
}

func (c *Checkpoints) Update(path string, offset int64) {
	c.mu.Lock()
	if c.offsets[path] != offset {
		c.offsets[path] = offset
		c.dirty = true
	}
	c.mu.Unlock()
}

func (c *Checkpoints) Offset(path string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.offsets[path]
	return off, ok
}

// SeekInfo returns where tailing of path should begin for the given mode.
func (c *Checkpoints) SeekInfo(path, mode string) *tail.SeekInfo {
	switch mode {
	case StartAtBeginning:
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	case StartAtOffset:
		saved, ok := c.Offset(path)
		if !ok {
			return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() < saved {
			// rotated or truncated since the offset was taken
			logger.Get().Infow("checkpoint past end of file, starting over",
				"file", path, "offset", saved)
			return &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
		}
		return &tail.SeekInfo{Offset: saved, Whence: io.SeekStart}
	default:
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
}
