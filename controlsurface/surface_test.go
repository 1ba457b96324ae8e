package controlsurface

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/clintpurser/dxlhand/control"
)

func TestDecode(t *testing.T) {
	ev, ok := Decode(midi.ControlChange(0, 46, 127))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, ev, test.ShouldResemble, control.ControlEvent{ControlID: 46, Value: 127})

	ev, ok = Decode(midi.ControlChange(2, 5, 64))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, ev.ControlID, test.ShouldEqual, 2<<8|5)
	test.That(t, ev.Value, test.ShouldEqual, 64)

	_, ok = Decode(midi.NoteOn(0, 60, 100))
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPollDrainsInOrder(t *testing.T) {
	s := newSurface(logging.NewTestLogger(t), 16)
	for i := 0; i < 7; i++ {
		s.handle(midi.ControlChange(0, uint8(i), uint8(10*i)))
	}
	s.handle(midi.NoteOff(0, 60))

	first := s.Poll(control.MaxEventsPerTick)
	test.That(t, first, test.ShouldHaveLength, 5)
	test.That(t, first[0], test.ShouldResemble, control.ControlEvent{ControlID: 0, Value: 0})
	test.That(t, first[4], test.ShouldResemble, control.ControlEvent{ControlID: 4, Value: 40})

	rest := s.Poll(control.MaxEventsPerTick)
	test.That(t, rest, test.ShouldHaveLength, 2)
	test.That(t, s.Poll(control.MaxEventsPerTick), test.ShouldBeEmpty)
}

func TestFullBufferDrops(t *testing.T) {
	s := newSurface(logging.NewTestLogger(t), 2)
	for i := 0; i < 5; i++ {
		s.handle(midi.ControlChange(0, 0, uint8(i)))
	}
	test.That(t, s.Dropped(), test.ShouldEqual, 3)
	got := s.Poll(10)
	test.That(t, got, test.ShouldResemble, []control.ControlEvent{{ControlID: 0, Value: 0}, {ControlID: 0, Value: 1}})
}

func TestCloseWithoutDevice(t *testing.T) {
	s := newSurface(logging.NewTestLogger(t), 0)
	test.That(t, s.Close(), test.ShouldBeNil)
}
