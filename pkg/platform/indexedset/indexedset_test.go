package indexedset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRemoveContains(t *testing.T) {
	s := New[int]()

	require.True(t, s.Add(1))
	require.True(t, s.Add(2))
	require.True(t, s.Add(3))
	require.False(t, s.Add(2), "duplicate add must be rejected")
	require.Equal(t, 3, s.Len())

	require.True(t, s.Remove(1))
	require.False(t, s.Remove(1), "second removal must report absence")
	require.False(t, s.Contains(1))
	require.True(t, s.Contains(2))
	require.True(t, s.Contains(3))
	require.Equal(t, 2, s.Len())
}

func TestRemoveLastElement(t *testing.T) {
	s := New[string]()
	s.Add("a")
	s.Add("b")

	require.True(t, s.Remove("b"))
	require.ElementsMatch(t, []string{"a"}, s.Values())
}

// The index map must agree with the slice after any interleaving of adds and
// removals: every enumerated value is still reachable through Contains and a
// removed value never lingers.
func TestIndexConsistencyAfterChurn(t *testing.T) {
	s := New[int]()
	present := map[int]bool{}

	ops := []struct {
		add bool
		v   int
	}{
		{true, 10}, {true, 20}, {true, 30}, {true, 40},
		{false, 20}, {true, 50}, {false, 10}, {false, 50},
		{true, 20}, {false, 40}, {true, 60},
	}
	for _, op := range ops {
		if op.add {
			require.Equal(t, !present[op.v], s.Add(op.v))
			present[op.v] = true
		} else {
			require.Equal(t, present[op.v], s.Remove(op.v))
			delete(present, op.v)
		}
	}

	want := make([]int, 0, len(present))
	for v := range present {
		want = append(want, v)
	}
	require.ElementsMatch(t, want, s.Values())
	for _, v := range s.Values() {
		require.True(t, s.Contains(v))
	}
	require.Equal(t, len(want), s.Len())
}

func TestValuesReturnsCopy(t *testing.T) {
	s := New[int]()
	s.Add(1)
	s.Add(2)

	vs := s.Values()
	vs[0] = 99
	require.ElementsMatch(t, []int{1, 2}, s.Values())
}
