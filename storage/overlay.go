package storage

import (
	"sort"
	"strings"
)

// ReadState is the read surface shared by the committed store and
// overlays.
type ReadState interface {
	Get(key []byte) ([]byte, error)
	Range(prefix []byte) (Iterator, error)
}

// State is the mutable surface the executor and matching engine operate
// against.
type State interface {
	ReadState
	Set(key, value []byte)
	Delete(key []byte)
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay is a copy-on-write layer over a parent state. Writes buffer in
// the overlay and shadow parent reads; nothing reaches the parent until
// Apply (overlay parent) or Store.Commit (store parent). Scratch overlays
// nest: each action runs in its own scratch that is merged into the block
// overlay only on success.
type Overlay struct {
	parent  ReadState
	entries map[string]overlayEntry
}

// NewOverlay layers an empty overlay over parent.
func NewOverlay(parent ReadState) *Overlay {
	return &Overlay{
		parent:  parent,
		entries: make(map[string]overlayEntry),
	}
}

// NewScratch opens a nested overlay for a single action.
func (o *Overlay) NewScratch() *Overlay {
	return NewOverlay(o)
}

// Get returns the buffered value, or falls through to the parent. A nil
// result with nil error means absent.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if e, ok := o.entries[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	return o.parent.Get(key)
}

// Set buffers a write.
func (o *Overlay) Set(key, value []byte) {
	cp := append([]byte(nil), value...)
	o.entries[string(key)] = overlayEntry{value: cp}
}

// Delete buffers a deletion.
func (o *Overlay) Delete(key []byte) {
	o.entries[string(key)] = overlayEntry{deleted: true}
}

// Range iterates keys under prefix in ascending order, overlay entries
// merged over the parent.
func (o *Overlay) Range(prefix []byte) (Iterator, error) {
	parentIt, err := o.parent.Range(prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	p := string(prefix)
	for k := range o.entries {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return newMergedIterator(parentIt, keys, o.entries), nil
}

// Apply folds this overlay into its parent overlay. The parent must be an
// *Overlay; folding into the store goes through Store.Commit.
func (o *Overlay) Apply() {
	parent, ok := o.parent.(*Overlay)
	if !ok {
		panic("overlay apply: parent is not an overlay")
	}
	for k, e := range o.entries {
		parent.entries[k] = e
	}
}

// Discard drops all buffered writes.
func (o *Overlay) Discard() {
	o.entries = make(map[string]overlayEntry)
}

// kvPair is a buffered write surfaced for commit.
type kvPair struct {
	key   string
	entry overlayEntry
}

// pairs returns the buffered writes sorted by key. Commit applies them in
// this order so batches are byte-identical across validators.
func (o *Overlay) pairs() []kvPair {
	out := make([]kvPair, 0, len(o.entries))
	for k, e := range o.entries {
		out = append(out, kvPair{key: k, entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
