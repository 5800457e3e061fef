package session

// Accumulator buffers realtime audio fragments for one connection until a
// byte threshold is crossed. It is owned by a single goroutine and does no
// locking.
type Accumulator struct {
	buf       []byte
	threshold int
	max       int // 0 means unbounded
}

// NewAccumulator creates an empty buffer that fires at threshold bytes and
// refuses to grow beyond max bytes.
func NewAccumulator(threshold, max int) *Accumulator {
	return &Accumulator{threshold: threshold, max: max}
}

// Append adds frag and reports whether this append crossed the threshold.
// A buffer already at or past the threshold does not fire again until it
// has been drained or reset.
func (a *Accumulator) Append(frag []byte) bool {
	before := len(a.buf)
	a.buf = append(a.buf, frag...)
	return before < a.threshold && len(a.buf) >= a.threshold
}

// Fits reports whether n more bytes stay within the size limit.
func (a *Accumulator) Fits(n int) bool {
	return a.max <= 0 || len(a.buf)+n <= a.max
}

// Drain returns the buffered bytes and leaves the accumulator empty.
// The returned slice is no longer referenced by the accumulator.
func (a *Accumulator) Drain() []byte {
	out := a.buf
	a.buf = nil
	return out
}

// Reset discards the buffered bytes.
func (a *Accumulator) Reset() {
	a.buf = nil
}

func (a *Accumulator) Len() int       { return len(a.buf) }
func (a *Accumulator) Threshold() int { return a.threshold }
