// Package ledger keeps per-relay switch counters in power-loss safe storage.
//
// Layout is fixed: 4 bytes per relay, little-endian uint16 pairs.
// ON count of relay id lives at offset id*4, OFF count at id*4+2.
// Counters wrap at 65535, increments never fail.
package ledger

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/gsmrelay/log2"
)

const recordSize = 4

type Storage interface {
	// nil,nil = never written
	Read() ([]byte, error)
	io.Writer
}

type Ledger struct { //nolint:maligned
	log     *log2.Log
	storage Storage

	mu sync.Mutex
	on []uint16
	off []uint16
}

// New with storage=nil keeps counters in memory only, useful in tests.
func New(log *log2.Log, n int, storage Storage) *Ledger {
	return &Ledger{
		log:     log,
		storage: storage,
		on:      make([]uint16, n),
		off:     make([]uint16, n),
	}
}

func Open(log *log2.Log, n int, dir string) *Ledger {
	storage := extremofile.New(extremofile.Config{
		Dir:      dir,
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return New(log, n, storage)
}

func (l *Ledger) N() int { return len(l.on) }

func (l *Ledger) Load() error {
	if l.storage == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.storage.Read()
	if b == nil {
		// never written, counters stay zero
		return nil
	}
	if err != nil {
		l.log.Errorf("ledger ignore non-critical storage err=%v", err)
	}
	l.decode(b)
	return nil
}

func (l *Ledger) Inc(id int, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.on) {
		l.log.Errorf("ledger inc out of range id=%d", id)
		return
	}
	if on {
		l.on[id]++ // wraps
	} else {
		l.off[id]++
	}
	l.store()
}

func (l *Ledger) Count(id int, on bool) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.on) {
		return 0
	}
	if on {
		return l.on[id]
	}
	return l.off[id]
}

func (l *Ledger) MarshalBinary() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encode(), nil
}

func (l *Ledger) UnmarshalBinary(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(b)%recordSize != 0 {
		return errors.Errorf("ledger data length=%d not multiple of %d", len(b), recordSize)
	}
	l.decode(b)
	return nil
}

func (l *Ledger) encode() []byte {
	b := make([]byte, len(l.on)*recordSize)
	for id := range l.on {
		binary.LittleEndian.PutUint16(b[id*recordSize:], l.on[id])
		binary.LittleEndian.PutUint16(b[id*recordSize+2:], l.off[id])
	}
	return b
}

// Tolerates short or long input: missing relays stay zero, extra bytes
// from a previous wider deployment are ignored.
func (l *Ledger) decode(b []byte) {
	for id := range l.on {
		if (id+1)*recordSize > len(b) {
			break
		}
		l.on[id] = binary.LittleEndian.Uint16(b[id*recordSize:])
		l.off[id] = binary.LittleEndian.Uint16(b[id*recordSize+2:])
	}
}

func (l *Ledger) store() {
	if l.storage == nil {
		return
	}
	if _, err := l.storage.Write(l.encode()); err != nil {
		l.log.Errorf("ledger store err=%v", err)
	}
}
