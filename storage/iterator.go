package storage

import (
	dbm "github.com/tendermint/tm-db"
)

// Iterator walks key-value pairs in ascending key order. It mirrors the
// tm-db iterator contract: callers check Valid, read Key/Value, advance
// with Next and Close when done.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Error() error
	Close() error
}

// dbIterator adapts a tm-db iterator.
type dbIterator struct {
	it dbm.Iterator
}

func (d *dbIterator) Valid() bool   { return d.it.Valid() }
func (d *dbIterator) Key() []byte   { return d.it.Key() }
func (d *dbIterator) Value() []byte { return d.it.Value() }
func (d *dbIterator) Next()         { d.it.Next() }
func (d *dbIterator) Error() error  { return d.it.Error() }
func (d *dbIterator) Close() error  { return d.it.Close() }

// mergedIterator layers sorted overlay entries over a parent iterator.
// Overlay entries shadow parent entries with the same key; deletions hide
// them entirely.
type mergedIterator struct {
	parent  Iterator
	keys    []string
	entries map[string]overlayEntry
	idx     int
	err     error

	curKey []byte
	curVal []byte
	valid  bool
}

func newMergedIterator(parent Iterator, keys []string, entries map[string]overlayEntry) *mergedIterator {
	m := &mergedIterator{parent: parent, keys: keys, entries: entries}
	m.advance()
	return m
}

func (m *mergedIterator) Valid() bool   { return m.valid }
func (m *mergedIterator) Key() []byte   { return m.curKey }
func (m *mergedIterator) Value() []byte { return m.curVal }
func (m *mergedIterator) Error() error {
	if m.err != nil {
		return m.err
	}
	return m.parent.Error()
}
func (m *mergedIterator) Close() error { return m.parent.Close() }

func (m *mergedIterator) Next() { m.advance() }

func (m *mergedIterator) advance() {
	for {
		haveOverlay := m.idx < len(m.keys)
		haveParent := m.parent.Valid()

		switch {
		case !haveOverlay && !haveParent:
			m.valid = false
			m.curKey, m.curVal = nil, nil
			return
		case haveOverlay && haveParent:
			ok := m.keys[m.idx]
			pk := string(m.parent.Key())
			switch {
			case ok < pk:
				if m.emitOverlay(ok) {
					return
				}
			case ok == pk:
				// Overlay shadows parent; consume both.
				m.parent.Next()
				if m.emitOverlay(ok) {
					return
				}
			default:
				m.emitParent()
				return
			}
		case haveOverlay:
			if m.emitOverlay(m.keys[m.idx]) {
				return
			}
		default:
			m.emitParent()
			return
		}
	}
}

// emitOverlay surfaces the overlay entry at key unless it is a deletion.
// Reports whether a pair was emitted.
func (m *mergedIterator) emitOverlay(key string) bool {
	m.idx++
	e := m.entries[key]
	if e.deleted {
		return false
	}
	m.valid = true
	m.curKey = []byte(key)
	m.curVal = e.value
	return true
}

func (m *mergedIterator) emitParent() {
	m.valid = true
	m.curKey = append([]byte(nil), m.parent.Key()...)
	m.curVal = append([]byte(nil), m.parent.Value()...)
	m.parent.Next()
}
