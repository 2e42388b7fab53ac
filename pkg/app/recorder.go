package app

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

type EntryKind uint8

const (
	EntryMessage EntryKind = iota + 1
	EntryEcho
	EntryInfo
	EntryWarn
	EntryClear
)

type Entry struct {
	Kind EntryKind
	From peer.ID
	Text string
}

var _ Display = (*Recorder)(nil)

// Recorder keeps everything displayed in memory. It is used by tests and by
// headless nodes.
type Recorder struct {
	mtx     sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Message(from peer.ID, text string) {
	r.add(Entry{Kind: EntryMessage, From: from, Text: text})
}

func (r *Recorder) Echo(text string) {
	r.add(Entry{Kind: EntryEcho, Text: text})
}

func (r *Recorder) Info(msg string) {
	r.add(Entry{Kind: EntryInfo, Text: msg})
}

func (r *Recorder) Warn(msg string) {
	r.add(Entry{Kind: EntryWarn, Text: msg})
}

func (r *Recorder) Clear() {
	r.add(Entry{Kind: EntryClear})
}

func (r *Recorder) add(e Entry) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Filter returns the recorded entries of the given kind.
func (r *Recorder) Filter(kind EntryKind) []Entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
