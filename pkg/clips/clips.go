// Package clips keeps a local, file-backed library of clipped messages. Each
// entry carries a blake2b digest of its snapshot so edits to the file can be
// detected.
package clips

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-echo/pkg/types"
	"golang.org/x/crypto/blake2b"
)

// Entry is a clipped message as stored locally.
type Entry struct {
	types.Clip
	Hash string `json:"hash"`
}

// Library is safe for concurrent use. A Library with an empty path lives in
// memory only.
type Library struct {
	path    string
	mu      sync.Mutex
	entries []Entry
}

// Open loads the library stored at path. A missing file is an empty library.
func Open(path string) (*Library, error) {
	l := &Library{path: path}
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read clips: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	return l, nil
}

// Hash returns the hex blake2b-256 digest of the clip snapshot. Every field
// is length-prefixed so text cannot move across a field boundary without
// changing the digest.
func Hash(c types.Clip) string {
	h, _ := blake2b.New256(nil)
	for _, f := range []string{
		c.MessageId,
		c.MessageContent,
		c.OriginalUsername,
		c.RoomCode,
		c.MessageCreatedAt.UTC().Format(time.RFC3339Nano),
		c.ClippedAt.UTC().Format(time.RFC3339Nano),
	} {
		var n [binary.MaxVarintLen64]byte
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(f)))])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the entry still matches its digest.
func Verify(e Entry) bool {
	return e.Hash == Hash(e.Clip)
}

// Add stores a snapshot of the clip. Clipping the same message twice keeps
// the first snapshot.
func (l *Library) Add(c types.Clip) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.MessageId == c.MessageId {
			return e, nil
		}
	}

	e := Entry{Clip: c, Hash: Hash(c)}
	l.entries = append(l.entries, e)
	if err := l.save(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return Entry{}, err
	}
	return e, nil
}

// List returns the entries newest clip first.
func (l *Library) List() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClippedAt.After(out[j].ClippedAt)
	})
	return out
}

// Remove deletes the entry for messageId and reports whether it existed.
func (l *Library) Remove(messageId string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.MessageId != messageId {
			continue
		}
		prev := l.entries
		l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
		if err := l.save(); err != nil {
			l.entries = prev
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (l *Library) save() error {
	if l.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode clips: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create clips dir: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write clips: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace clips: %w", err)
	}
	return nil
}
