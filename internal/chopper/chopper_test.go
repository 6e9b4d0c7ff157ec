package chopper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/chopper"
)

var versions = []int{0, 0, 0, 1, 1, 1, 1, 2, 3, 4, 4, 5}

func TestRepeatedChopsFindEveryTransition(t *testing.T) {
	type pair struct{ before, after int }
	var got []pair

	start, end := 0, len(versions)-1
	for start != end {
		c := chopper.New(
			chopper.Bound[int, int]{Pos: start, State: versions[start]},
			chopper.Bound[int, int]{Pos: end, State: versions[end]},
		)
		next := c.Next()
		for !next.Finished {
			c.SetStateForNextValue(versions[next.Pos])
			next = c.Next()
		}
		assert.NotEqual(t, next.Low.State, next.High.State)
		assert.Equal(t, versions[next.Low.Pos], next.Low.State)
		got = append(got, pair{next.Low.Pos, next.High.Pos})
		start = next.High.Pos
	}
	assert.Equal(t, []pair{{2, 3}, {6, 7}, {7, 8}, {8, 9}, {10, 11}}, got)
}

func TestFinishedImmediately(t *testing.T) {
	same := chopper.New(chopper.Bound[uint32, string]{Pos: 5, State: "a"}, chopper.Bound[uint32, string]{Pos: 5, State: "a"})
	assert.True(t, same.Next().Finished)

	adjacent := chopper.New(chopper.Bound[uint32, string]{Pos: 5, State: "a"}, chopper.Bound[uint32, string]{Pos: 6, State: "b"})
	next := adjacent.Next()
	assert.True(t, next.Finished)
	assert.Equal(t, uint32(5), next.Low.Pos)
	assert.Equal(t, "b", next.High.State)
}

func TestSingleTransitionLargeRange(t *testing.T) {
	const change = uint64(1_234_567)
	state := func(n uint64) bool { return n >= change }

	c := chopper.New(chopper.Bound[uint64, bool]{Pos: 0, State: false}, chopper.Bound[uint64, bool]{Pos: 10_000_000, State: true})
	probes := 0
	next := c.Next()
	for !next.Finished {
		probes++
		c.SetStateForNextValue(state(next.Pos))
		next = c.Next()
	}
	assert.Equal(t, change-1, next.Low.Pos)
	assert.Equal(t, change, next.High.Pos)
	assert.LessOrEqual(t, probes, 24)
}

func TestFindAll(t *testing.T) {
	var calls int
	state := func(_ context.Context, n int) (int, error) {
		calls++
		return versions[n], nil
	}
	var seen []int
	got, err := chopper.FindAll(context.Background(), 0, len(versions)-1, state, func(tr chopper.Transition[int, int]) error {
		seen = append(seen, tr.After.Pos)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, chopper.Transition[int, int]{
		Before: chopper.Bound[int, int]{Pos: 2, State: 0},
		After:  chopper.Bound[int, int]{Pos: 3, State: 1},
	}, got[0])
	assert.Equal(t, []int{3, 7, 8, 9, 11}, seen)
	assert.Less(t, calls, 40)
}

func TestFindAllNoChange(t *testing.T) {
	state := func(context.Context, int) (string, error) { return "same", nil }
	got, err := chopper.FindAll(context.Background(), 0, 100, state, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindAllStateError(t *testing.T) {
	boom := errors.New("boom")
	state := func(_ context.Context, n int) (int, error) {
		if n == 50 {
			return 0, boom
		}
		return n / 60, nil
	}
	_, err := chopper.FindAll(context.Background(), 0, 100, state, nil)
	assert.ErrorIs(t, err, boom)

	_, err = chopper.FindAll(context.Background(), 10, 5, state, nil)
	assert.Error(t, err)
}

func TestFindAllStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	state := func(_ context.Context, n int) (int, error) { return versions[n], nil }
	got, err := chopper.FindAll(context.Background(), 0, len(versions)-1, state, func(chopper.Transition[int, int]) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, got, 1)
}
