package market

// Window is a fixed-capacity ring buffer holding the most recent bars of a
// single symbol. Pushing into a full window evicts the oldest bar in O(1).
type Window struct {
	buf   []Bar
	head  int // index of the oldest bar
	count int
}

// NewWindow returns an empty window that retains at most capacity bars.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Bar, capacity)}
}

// Cap returns the maximum number of bars the window retains.
func (w *Window) Cap() int { return len(w.buf) }

// Len returns the number of bars currently held.
func (w *Window) Len() int { return w.count }

// Push appends b, evicting the oldest bar when the window is full.
func (w *Window) Push(b Bar) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = b
		w.count++
		return
	}
	w.buf[w.head] = b
	w.head = (w.head + 1) % len(w.buf)
}

// Last returns the newest bar. ok is false when the window is empty.
func (w *Window) Last() (b Bar, ok bool) {
	if w.count == 0 {
		return Bar{}, false
	}
	return w.buf[(w.head+w.count-1)%len(w.buf)], true
}

// At returns the i-th bar, oldest first.
func (w *Window) At(i int) Bar {
	if i < 0 || i >= w.count {
		panic("market: window index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Bars copies the held bars into a new slice, oldest first. Strategies get
// a copy so they cannot corrupt the buffer.
func (w *Window) Bars() []Bar {
	out := make([]Bar, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Reset empties the window without releasing its storage.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}
