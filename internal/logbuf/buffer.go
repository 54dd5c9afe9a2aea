package logbuf

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the ring buffer; the oldest entries drop first.
const DefaultMaxEntries = 5000

// Buffer is a bounded ring of categorized log entries. It is written by the
// child's stream readers and the file tailer and read by the query API, so
// all access is serialized internally. An optional notify callback observes
// every appended entry; it runs outside the buffer lock.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	startIdx int
	count    int
	max      int
	notify   func(Entry)
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Buffer{entries: make([]Entry, max), max: max}
}

// OnEntry registers the single append observer. Must be set before pushes
// begin.
func (b *Buffer) OnEntry(fn func(Entry)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Push splits raw on newlines, classifies each non-empty line with the
// default category for the source, and appends the resulting entries.
// Stream captures use CategoryConsole as the default.
func (b *Buffer) Push(raw string, source Source, def Category) {
	if def == "" {
		def = CategoryConsole
	}
	ts := time.Now().UnixMilli()
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.Append(Classify(line, source, def, ts))
	}
}

// Append adds one already-classified entry, evicting the oldest on overflow.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	idx := (b.startIdx + b.count) % b.max
	b.entries[idx] = e
	if b.count < b.max {
		b.count++
	} else {
		b.startIdx = (b.startIdx + 1) % b.max
	}
	notify := b.notify
	b.mu.Unlock()
	if notify != nil {
		notify(e)
	}
}

// Logs returns the most recent entries in push order, filtered by category
// first when one is given, then truncated to the last limit. limit <= 0
// returns everything retained.
func (b *Buffer) Logs(limit int, category Category) []Entry {
	b.mu.Lock()
	all := make([]Entry, 0, b.count)
	for i := 0; i < b.count; i++ {
		all = append(all, b.entries[(b.startIdx+i)%b.max])
	}
	b.mu.Unlock()

	if category != "" {
		filtered := all[:0]
		for _, e := range all {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Entry, len(all))
	copy(out, all)
	return out
}

// Len reports how many entries are retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear empties the ring.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.startIdx = 0
	b.count = 0
	b.mu.Unlock()
}
