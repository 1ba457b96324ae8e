package calibration

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewMap(t *testing.T) {
	m, err := NewMap(
		Channel{ID: 3, Rest: 300, Low: 0, High: 657},
		Channel{ID: 0, Rest: 210, Low: 412, High: 37},
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Len(), test.ShouldEqual, 2)
	test.That(t, m.IDs(), test.ShouldResemble, []int{0, 3})

	ch, err := m.Channel(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ch.Inverted(), test.ShouldBeTrue)
	test.That(t, ch.Direction(), test.ShouldEqual, TowardLowIncreases)

	ch, err = m.Channel(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ch.Inverted(), test.ShouldBeFalse)
	test.That(t, ch.Direction(), test.ShouldEqual, TowardHighIncreases)
}

func TestNewMapRejectsBadChannels(t *testing.T) {
	_, err := NewMap(Channel{ID: 1, Low: 0, High: 10}, Channel{ID: 1, Low: 5, High: 9})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "twice")

	_, err = NewMap(Channel{ID: 300, Low: 0, High: 10})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewMap(Channel{ID: 2, Low: 10, High: 10})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLimitsFor(t *testing.T) {
	m, err := NewMap(Channel{ID: 1, Low: 932, High: 247})
	test.That(t, err, test.ShouldBeNil)

	low, high, err := m.LimitsFor(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, low, test.ShouldEqual, 932)
	test.That(t, high, test.ShouldEqual, 247)

	_, _, err = m.LimitsFor(7)
	test.That(t, errors.Is(err, ErrUnknownChannel), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "channel 7")
}

func TestClamp(t *testing.T) {
	ch := Channel{ID: 0, Low: 412, High: 37}
	test.That(t, ch.Min(), test.ShouldEqual, 37)
	test.That(t, ch.Max(), test.ShouldEqual, 412)
	test.That(t, ch.Clamp(500), test.ShouldEqual, 412)
	test.That(t, ch.Clamp(-20), test.ShouldEqual, 37)
	test.That(t, ch.Clamp(200), test.ShouldEqual, 200)
}

func TestIDsIsACopy(t *testing.T) {
	m, err := NewMap(Channel{ID: 1, Low: 0, High: 1}, Channel{ID: 2, Low: 0, High: 1})
	test.That(t, err, test.ShouldBeNil)
	ids := m.IDs()
	ids[0] = 99
	test.That(t, m.IDs(), test.ShouldResemble, []int{1, 2})
}
