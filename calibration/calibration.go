// Package calibration holds the static per-servo rest positions and safe
// register limits of a hand.
package calibration

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/clintpurser/dxlhand/dynamixel"
)

// ErrUnknownChannel is returned when a channel id is not part of the map.
var ErrUnknownChannel = errors.New("unknown channel")

// Direction says which way the raw register moves as a channel travels toward its low limit.
type Direction int

const (
	// TowardHighIncreases means raw values grow from Low toward High.
	TowardHighIncreases Direction = iota
	// TowardLowIncreases means raw values grow toward Low (an inverted channel).
	TowardLowIncreases
)

func (d Direction) String() string {
	if d == TowardLowIncreases {
		return "toward-low-increases"
	}
	return "toward-high-increases"
}

// Channel is one physical actuator. Low is the released end of travel and the
// position for a knob at 0; High is the opposite end. Low may exceed High.
type Channel struct {
	ID   int
	Name string
	Rest int
	Low  int
	High int

	direction Direction
}

// Limits returns the (low, high) limit pair in configured order.
func (c Channel) Limits() (int, int) {
	return c.Low, c.High
}

// Inverted reports whether increasing raw values close toward Low.
func (c Channel) Inverted() bool {
	return c.Low > c.High
}

// Direction returns the travel direction fixed when the map was built.
func (c Channel) Direction() Direction {
	return c.direction
}

// Min and Max return the limits in numeric order.
func (c Channel) Min() int { return min(c.Low, c.High) }
func (c Channel) Max() int { return max(c.Low, c.High) }

// Clamp bounds v to [Min, Max].
func (c Channel) Clamp(v int) int {
	return max(c.Min(), min(v, c.Max()))
}

// Map is an immutable set of channels keyed by id.
type Map struct {
	channels map[int]Channel
	ids      []int
}

// NewMap validates the channels and freezes them into a Map.
func NewMap(channels ...Channel) (*Map, error) {
	m := &Map{channels: make(map[int]Channel, len(channels))}
	for _, ch := range channels {
		if !dynamixel.ValidID(ch.ID) {
			return nil, errors.Errorf("channel id %d outside 0..%d", ch.ID, dynamixel.MaxID)
		}
		if _, dup := m.channels[ch.ID]; dup {
			return nil, errors.Errorf("channel %d configured twice", ch.ID)
		}
		if ch.Low == ch.High {
			return nil, errors.Errorf("channel %d has an empty range (%d, %d)", ch.ID, ch.Low, ch.High)
		}
		ch.direction = TowardHighIncreases
		if ch.Inverted() {
			ch.direction = TowardLowIncreases
		}
		m.channels[ch.ID] = ch
		m.ids = append(m.ids, ch.ID)
	}
	sort.Ints(m.ids)
	return m, nil
}

// Channel returns the configured channel for id.
func (m *Map) Channel(id int) (Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return Channel{}, errors.Wrapf(ErrUnknownChannel, "channel %d", id)
	}
	return ch, nil
}

// LimitsFor returns the (low, high) pair of a channel.
func (m *Map) LimitsFor(id int) (int, int, error) {
	ch, err := m.Channel(id)
	if err != nil {
		return 0, 0, err
	}
	low, high := ch.Limits()
	return low, high, nil
}

// IDs returns the configured ids in ascending order.
func (m *Map) IDs() []int {
	return append([]int(nil), m.ids...)
}

// Len returns the number of channels.
func (m *Map) Len() int {
	return len(m.ids)
}
