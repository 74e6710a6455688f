package style

import (
	"strings"
	"sync"
)

// Sheet is a compiled stylesheet handle.
type Sheet struct {
	Key    string
	CSS    string
	Serial int64 // registration order, unique per Registrar
}

// Registry is an ordered set of attached sheets.
// Add and Remove are idempotent.
type Registry interface {
	Add(s *Sheet)
	Remove(s *Sheet)
}

// Observer receives a snapshot of the attached sheets after every mutation.
// It is called with the document lock held and must not call back into the
// Document.
type Observer func(sheets []*Sheet)

// Document is an in-memory Registry.
//
// Thread-safety: all methods are safe for concurrent use.
type Document struct {
	mu        sync.Mutex
	sheets    []*Sheet
	observers []Observer
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Observe registers an observer for subsequent mutations.
func (d *Document) Observe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Add attaches s at the end of the list. Adding an attached sheet is a no-op.
func (d *Document) Add(s *Sheet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.sheets {
		if existing == s {
			return
		}
	}
	d.sheets = append(d.sheets, s)
	d.notify()
}

// Remove detaches s. Removing a detached sheet is a no-op.
func (d *Document) Remove(s *Sheet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.sheets {
		if existing == s {
			d.sheets = append(d.sheets[:i:i], d.sheets[i+1:]...)
			d.notify()
			return
		}
	}
}

// Sheets returns a snapshot of the attached sheets in order.
func (d *Document) Sheets() []*Sheet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

// CSS returns the text of all attached sheets in cascade order.
func (d *Document) CSS() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	for _, s := range d.sheets {
		b.WriteString(s.CSS)
		if !strings.HasSuffix(s.CSS, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (d *Document) snapshot() []*Sheet {
	out := make([]*Sheet, len(d.sheets))
	copy(out, d.sheets)
	return out
}

func (d *Document) notify() {
	if len(d.observers) == 0 {
		return
	}
	snap := d.snapshot()
	for _, o := range d.observers {
		o(snap)
	}
}
