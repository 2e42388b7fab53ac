package gka

// window tracks the sequence numbers seen from one sender in the current
// epoch. Messages may arrive out of order up to tolerance positions behind
// the highest sequence seen and at most maxForward positions ahead of it.
type window struct {
	started bool
	highest uint64
	seen    map[uint64]struct{}
}

func newWindow() *window {
	return &window{seen: make(map[uint64]struct{})}
}

func (w *window) check(seq, tolerance, maxForward uint64) error {
	if !w.started || seq > w.highest {
		if seq-w.highest > maxForward {
			return ErrTooDistant
		}
		return nil
	}
	if w.highest-seq > tolerance {
		return ErrTooOld
	}
	if _, ok := w.seen[seq]; ok {
		return ErrReplay
	}
	return nil
}

func (w *window) mark(seq, tolerance uint64) {
	if !w.started || seq > w.highest {
		w.highest = seq
		w.started = true
	}
	w.seen[seq] = struct{}{}
	for s := range w.seen {
		if w.highest-s > tolerance {
			delete(w.seen, s)
		}
	}
}
