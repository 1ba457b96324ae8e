package control

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/clintpurser/dxlhand/fake"
)

func TestAssemble(t *testing.T) {
	batch := Assemble([]GoalPosition{{ChannelID: 0, Value: 412}, {ChannelID: 3, Value: 530}})
	test.That(t, batch, test.ShouldResemble, map[int]int{0: 412, 3: 530})
}

func TestTransmitSingleCall(t *testing.T) {
	bus := fake.NewBus(nil)
	goals := make([]GoalPosition, 0, 6)
	for id := 0; id < 6; id++ {
		goals = append(goals, GoalPosition{ChannelID: id, Value: 500 + id})
	}
	test.That(t, Transmit(bus, goals), test.ShouldBeNil)
	test.That(t, bus.WriteCount(), test.ShouldEqual, 1)
	test.That(t, bus.LastWrite(), test.ShouldHaveLength, 6)

	test.That(t, Transmit(bus, nil), test.ShouldBeNil)
	test.That(t, bus.WriteCount(), test.ShouldEqual, 1)
}

func TestTransmitWrapsBusError(t *testing.T) {
	bus := fake.NewBus(nil)
	bus.WriteErr = errors.New("checksum mismatch")
	err := Transmit(bus, []GoalPosition{{ChannelID: 1, Value: 2}})
	test.That(t, errors.Is(err, ErrTransmission), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "transmission failure: checksum mismatch")
	test.That(t, ChannelFailures(err), test.ShouldBeNil)
}

func TestGoalsDirtyTracking(t *testing.T) {
	g := NewGoals(twoByTwoHand(t))
	test.That(t, g.Dirty(), test.ShouldBeEmpty)

	v, ok := g.Get(1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 570)

	test.That(t, g.Set(3, 300), test.ShouldBeFalse)
	test.That(t, g.Set(3, 530), test.ShouldBeTrue)
	test.That(t, g.Set(0, 400), test.ShouldBeTrue)
	test.That(t, g.Dirty(), test.ShouldResemble, []GoalPosition{{ChannelID: 0, Value: 400}, {ChannelID: 3, Value: 530}})

	g.Sent(0)
	test.That(t, g.Dirty(), test.ShouldResemble, []GoalPosition{{ChannelID: 3, Value: 530}})

	snap := g.Snapshot()
	snap[3] = 1
	v, _ = g.Get(3)
	test.That(t, v, test.ShouldEqual, 530)
}
