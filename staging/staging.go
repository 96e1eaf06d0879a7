// Package staging implements a durable waiting room for fetched-but-not-yet
// digested feed bodies. Each entry is one flat file holding the feed URL and
// the raw body, so a pair survives a process restart between a background
// fetch and the next digestion run.
package staging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrEmpty indicates the queue holds no entries. Callers drain the queue by
// popping until they see it.
var ErrEmpty = errors.New("staging queue is empty")

const entryExt = ".stage"

// Entry is one staged fetch result.
type Entry struct {
	URL  string
	Body []byte
}

// Queue is a directory-backed queue of staged feed bodies. No ordering is
// guaranteed between entries; each pop returns some entry and removes it.
type Queue struct {
	dir string
}

// New creates a queue rooted at dir. The directory itself is created lazily
// on the first store.
func New(dir string) *Queue {
	return &Queue{dir: dir}
}

// StoreOne writes a single (url, body) pair as a new entry file. The file
// encodes a length-prefixed URL header followed by the raw body, so the
// pair is self-describing and atomic on disk.
func (q *Queue) StoreOne(url string, body []byte) error {
	if err := os.MkdirAll(q.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	data := make([]byte, 4+len(url)+len(body))
	binary.BigEndian.PutUint32(data[:4], uint32(len(url)))
	copy(data[4:], url)
	copy(data[4+len(url):], body)

	filename := filepath.Join(q.dir, uuid.New().String()+entryExt)
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write staging entry: %w", err)
	}

	return nil
}

// GetOne pops one entry from the queue: it is decoded, deleted from disk,
// and returned. Returns ErrEmpty when no entries remain. Entries that fail
// to decode are discarded with a warning rather than wedging the queue.
func (q *Queue) GetOne() (*Entry, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != entryExt {
			continue
		}

		filename := filepath.Join(q.dir, dirEntry.Name())
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read staging entry: %w", err)
		}

		entry, err := decode(data)
		if err != nil {
			log.Printf("WARN: Discarding corrupt staging entry %s: %v", dirEntry.Name(), err)
			os.Remove(filename)
			continue
		}

		if err := os.Remove(filename); err != nil {
			return nil, fmt.Errorf("failed to remove staging entry: %w", err)
		}

		return entry, nil
	}

	return nil, ErrEmpty
}

// decode splits an entry file back into its URL and body.
func decode(data []byte) (*Entry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("entry too short (%d bytes)", len(data))
	}

	urlLen := int(binary.BigEndian.Uint32(data[:4]))
	if urlLen < 0 || 4+urlLen > len(data) {
		return nil, fmt.Errorf("invalid URL length %d", urlLen)
	}

	return &Entry{
		URL:  string(data[4 : 4+urlLen]),
		Body: data[4+urlLen:],
	}, nil
}
