package chopper

import (
	"context"
	"fmt"
)

// Transition is an adjacent pair of positions with different states.
type Transition[N Position, T comparable] struct {
	Before Bound[N, T]
	After  Bound[N, T]
}

// StateFunc fetches the state at a position.
type StateFunc[N Position, T comparable] func(ctx context.Context, pos N) (T, error)

// FindAll returns the transitions between from and to in increasing order
// by bisecting repeatedly, starting each search at the previous boundary.
// found, if non-nil, is called as each transition is discovered.
func FindAll[N Position, T comparable](ctx context.Context, from, to N, state StateFunc[N, T], found func(Transition[N, T]) error) ([]Transition[N, T], error) {
	if from > to {
		return nil, fmt.Errorf("chopper: empty range %v..%v", from, to)
	}
	lowState, err := state(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chopper: state at %v: %w", from, err)
	}
	highState, err := state(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("chopper: state at %v: %w", to, err)
	}
	end := Bound[N, T]{Pos: to, State: highState}

	var out []Transition[N, T]
	low := Bound[N, T]{Pos: from, State: lowState}
	for low.Pos != end.Pos && low.State != end.State {
		c := New(low, end)
		for {
			next := c.Next()
			if next.Finished {
				break
			}
			if err := ctx.Err(); err != nil {
				return out, err
			}
			s, err := state(ctx, next.Pos)
			if err != nil {
				return out, fmt.Errorf("chopper: state at %v: %w", next.Pos, err)
			}
			c.SetStateForNextValue(s)
		}
		before, after := c.Bounds()
		t := Transition[N, T]{Before: before, After: after}
		out = append(out, t)
		if found != nil {
			if err := found(t); err != nil {
				return out, err
			}
		}
		low = after
	}
	return out, nil
}
