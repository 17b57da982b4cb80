package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const journalFile = "notices.jsonl.zst"

// Journal appends every notice to a zstd-compressed JSON-lines file. Each
// notice is its own zstd frame, so the file stays readable after a crash.
type Journal struct {
	path string
	enc  *zstd.Encoder
	mu   sync.Mutex
}

// NewJournal creates a journal under dir.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &Journal{path: filepath.Join(dir, journalFile), enc: enc}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Notify(_ context.Context, n Notice) error {
	line, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(j.enc.EncodeAll(line, nil)); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.enc.Close()
}

// ReadJournal decodes every notice stored at path.
func ReadJournal(path string) ([]Notice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	var notices []Notice
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var n Notice
		if err := json.Unmarshal(sc.Bytes(), &n); err != nil {
			return nil, fmt.Errorf("parse notice: %w", err)
		}
		notices = append(notices, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return notices, nil
}
