// Package chopper finds the position where some externally observed state
// changes, such as the block at which a runtime upgrade took effect, by
// bisection.
//
// A Chopper is driven by the caller: Next proposes a position, the caller
// fetches the state there and hands it back with SetStateForNextValue.
//
// Only one transition per probed range is found. If the state changes more
// than once between the bounds, the Chopper converges on one of the changes
// and says nothing about the others; FindAll re-runs the search from each
// discovered boundary to collect them in order. A state that changes and
// then changes back between two probes is never seen.
package chopper

// Position is an integer position such as a block number.
type Position interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// Bound is a position with its observed state.
type Bound[N Position, T comparable] struct {
	Pos   N
	State T
}

// Next is either a request for the state at Pos or, when Finished, the
// adjacent pair of bounds across which the state changes.
type Next[N Position, T comparable] struct {
	Finished bool
	Pos      N
	Low      Bound[N, T]
	High     Bound[N, T]
}

// Chopper bisects the range between two bounds.
type Chopper[N Position, T comparable] struct {
	low, high Bound[N, T]
}

// New returns a chopper searching between low and high. low.Pos must not
// exceed high.Pos.
func New[N Position, T comparable](low, high Bound[N, T]) *Chopper[N, T] {
	return &Chopper[N, T]{low: low, high: high}
}

// Next reports whether the search is finished, or the position whose state
// is needed next.
func (c *Chopper[N, T]) Next() Next[N, T] {
	if c.low.Pos == c.high.Pos || c.low.Pos+1 == c.high.Pos {
		return Next[N, T]{Finished: true, Low: c.low, High: c.high}
	}
	return Next[N, T]{Pos: c.mid()}
}

// SetStateForNextValue supplies the state at the position last proposed by
// Next. A state equal to the low bound's moves the low bound up; any other
// state moves the high bound down.
func (c *Chopper[N, T]) SetStateForNextValue(state T) {
	mid := c.mid()
	if state == c.low.State {
		c.low = Bound[N, T]{Pos: mid, State: state}
	} else {
		c.high = Bound[N, T]{Pos: mid, State: state}
	}
}

// Bounds returns the current low and high bounds.
func (c *Chopper[N, T]) Bounds() (low, high Bound[N, T]) { return c.low, c.high }

func (c *Chopper[N, T]) mid() N {
	return c.low.Pos + (c.high.Pos-c.low.Pos)/2
}
