// Package trajectory replays recorded joint-angle sequences onto the hand.
package trajectory

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrEmpty is returned for trajectories without steps.
var ErrEmpty = errors.New("trajectory has no steps")

// Trajectory holds, per channel, the joint angles in radians of every step.
// All channels advance together by step index.
type Trajectory struct {
	angles map[int][]float64
	ids    []int
	steps  int
}

// New checks that every channel has the same number of steps.
func New(angles map[int][]float64) (*Trajectory, error) {
	if len(angles) == 0 {
		return nil, ErrEmpty
	}
	t := &Trajectory{angles: make(map[int][]float64, len(angles)), steps: -1}
	for id, seq := range angles {
		if t.steps >= 0 && len(seq) != t.steps {
			return nil, errors.Errorf("channel %d has %d steps, expected %d", id, len(seq), t.steps)
		}
		t.steps = len(seq)
		t.angles[id] = append([]float64(nil), seq...)
		t.ids = append(t.ids, id)
	}
	if t.steps == 0 {
		return nil, ErrEmpty
	}
	sort.Ints(t.ids)
	return t, nil
}

// Len returns the number of steps.
func (t *Trajectory) Len() int {
	return t.steps
}

// ChannelIDs returns the channels covered, ascending.
func (t *Trajectory) ChannelIDs() []int {
	return append([]int(nil), t.ids...)
}

// Angles returns the full angle sequence of a channel.
func (t *Trajectory) Angles(id int) []float64 {
	return t.angles[id]
}
