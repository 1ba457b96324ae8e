// Package control turns control events into goal positions and ships them to
// the servo bus one batch per tick.
package control

import (
	"sort"

	"github.com/clintpurser/dxlhand/calibration"
)

// GoalPosition is the commanded raw target of one channel.
type GoalPosition struct {
	ChannelID int
	Value     int
}

// Goals holds the current goal of every channel and remembers which ones
// changed since the last successful transmission. It belongs to one control
// loop and is not safe for concurrent use.
type Goals struct {
	values map[int]int
	dirty  map[int]bool
}

// NewGoals seeds every channel of the map at its rest position.
func NewGoals(cal *calibration.Map) *Goals {
	g := &Goals{
		values: make(map[int]int, cal.Len()),
		dirty:  make(map[int]bool, cal.Len()),
	}
	for _, id := range cal.IDs() {
		ch, _ := cal.Channel(id)
		g.values[id] = ch.Rest
	}
	return g
}

// Get returns the goal of a channel.
func (g *Goals) Get(id int) (int, bool) {
	v, ok := g.values[id]
	return v, ok
}

// Set updates a goal and marks it for transmission when it changed.
func (g *Goals) Set(id, value int) bool {
	if cur, ok := g.values[id]; ok && cur == value {
		return false
	}
	g.values[id] = value
	g.dirty[id] = true
	return true
}

// MarkAll queues every channel for the next transmission.
func (g *Goals) MarkAll() {
	for id := range g.values {
		g.dirty[id] = true
	}
}

// Dirty returns the goals awaiting transmission, ordered by channel id.
func (g *Goals) Dirty() []GoalPosition {
	out := make([]GoalPosition, 0, len(g.dirty))
	for id := range g.dirty {
		out = append(out, GoalPosition{ChannelID: id, Value: g.values[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Sent clears the pending flag of the given channels.
func (g *Goals) Sent(ids ...int) {
	for _, id := range ids {
		delete(g.dirty, id)
	}
}

// Snapshot copies the current goals.
func (g *Goals) Snapshot() map[int]int {
	out := make(map[int]int, len(g.values))
	for id, v := range g.values {
		out[id] = v
	}
	return out
}
