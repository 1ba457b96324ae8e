package gripper

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/clintpurser/dxlhand/config"
	"github.com/clintpurser/dxlhand/fake"
)

func newTestHand(t *testing.T, preset string) (*dynamixelHand, *fake.Bus, *int) {
	t.Helper()
	return newTestHandFrom(t, config.Hand{Port: "/dev/null", Preset: preset})
}

func newTestHandFrom(t *testing.T, conf config.Hand) (*dynamixelHand, *fake.Bus, *int) {
	t.Helper()
	hand, err := conf.WithDefaults()
	test.That(t, err, test.ShouldBeNil)

	bus := fake.NewBus(nil)
	released := 0
	h, err := newHand(gripper.Named("hand"), hand, bus, func() { released++ }, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { h.Close(context.Background()) })
	return h, bus, &released
}

func (h *dynamixelHand) goal(id int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl.Goals()[id]
}

func TestConfigValidate(t *testing.T) {
	_, _, err := (&Config{Preset: "2v2"}).Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "usb_port")

	_, _, err = (&Config{Port: "/dev/ttyUSB0", Preset: "model-x"}).Validate("path")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = (&Config{Port: "/dev/ttyUSB0"}).Validate("path")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = (&Config{Port: "/dev/ttyUSB0", Preset: "model-q"}).Validate("path")
	test.That(t, err, test.ShouldBeNil)
}

func TestNewHandTorquesAndRests(t *testing.T) {
	_, bus, _ := newTestHand(t, "2v2")
	test.That(t, bus.Torque, test.ShouldResemble, map[int]bool{0: true, 1: true, 2: true, 3: true})
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 210, 1: 570, 2: 830, 3: 300})
}

func TestOpenAndGrab(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "2v2")

	test.That(t, h.Open(ctx, nil), test.ShouldBeNil)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 412, 1: 932, 2: 619, 3: 0})

	grabbed, err := h.Grab(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grabbed, test.ShouldBeTrue)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 37, 1: 247, 2: 1023, 3: 657})

	status, err := h.IsHoldingSomething(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.IsHoldingSomething, test.ShouldBeFalse)
}

func TestIsMovingAndStop(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "2v2")

	moving, err := h.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)

	// within the threshold
	bus.Present[0] = 215
	moving, err = h.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)

	bus.Present[2] = 700
	moving, err = h.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeTrue)

	test.That(t, h.Stop(ctx, nil), test.ShouldBeNil)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 215, 2: 700})
	moving, err = h.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeFalse)
}

func TestInputs(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "2v2")

	inputs, err := h.CurrentInputs(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inputs, test.ShouldResemble, []referenceframe.Input{210, 570, 830, 300})

	err = h.GoToInputs(ctx, []referenceframe.Input{200, 570, 830, 300}, []referenceframe.Input{190, 560, 830, 300})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 190, 1: 560})

	err = h.GoToInputs(ctx, []referenceframe.Input{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDoCommandControl(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "model-q")
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 100, 1: 1000, 2: 800, 3: 550})

	resp, err := h.DoCommand(ctx, map[string]interface{}{
		"control": map[string]interface{}{"control_id": 0.0, "value": 127.0},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["mode"], test.ShouldEqual, "main")
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 1100, 1: 0, 3: 1600})

	resp, err = h.DoCommand(ctx, map[string]interface{}{"set_mode": "individual"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["mode"], test.ShouldEqual, "individual")

	_, err = h.DoCommand(ctx, map[string]interface{}{
		"control": map[string]interface{}{"control_id": 7.0, "value": 127.0},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{2: 2375})

	resp, err = h.DoCommand(ctx, map[string]interface{}{"get_goals": true, "get_positions": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["goals"], test.ShouldResemble, map[string]interface{}{"0": 1100, "1": 0, "2": 2375, "3": 1600})
	test.That(t, resp["positions"], test.ShouldResemble, resp["goals"])

	_, err = h.DoCommand(ctx, map[string]interface{}{"set_mode": "sideways"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = h.DoCommand(ctx, map[string]interface{}{"control": "knob"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDoCommandTrajectory(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "2v2")

	_, err := h.DoCommand(ctx, map[string]interface{}{"next_step": true})
	test.That(t, err, test.ShouldNotBeNil)

	resp, err := h.DoCommand(ctx, map[string]interface{}{
		"load_trajectory": map[string]interface{}{
			"0": []interface{}{0.0, -0.2},
			"1": []interface{}{0.0, 0.2047},
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["steps"], test.ShouldEqual, 2)

	resp, err = h.DoCommand(ctx, map[string]interface{}{"next_step": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["step"], test.ShouldEqual, 0)

	resp, err = h.DoCommand(ctx, map[string]interface{}{"next_step": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["step"], test.ShouldEqual, 1)
	test.That(t, bus.LastWrite(), test.ShouldResemble, map[int]int{0: 249, 1: 530})

	_, err = h.DoCommand(ctx, map[string]interface{}{"next_step": true})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = h.DoCommand(ctx, map[string]interface{}{"load_trajectory": map[string]interface{}{"9": []interface{}{0.1}}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCloseDisablesTorqueOnce(t *testing.T) {
	ctx := context.Background()
	h, bus, released := newTestHand(t, "2v2")

	test.That(t, h.Close(ctx), test.ShouldBeNil)
	test.That(t, bus.Disabled, test.ShouldResemble, []int{0, 1, 2, 3})
	test.That(t, *released, test.ShouldEqual, 1)

	test.That(t, h.Close(ctx), test.ShouldBeNil)
	test.That(t, *released, test.ShouldEqual, 1)
	test.That(t, bus.Disabled, test.ShouldHaveLength, 4)
}

func TestDoCommandTorque(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHand(t, "2v2")

	resp, err := h.DoCommand(ctx, map[string]interface{}{"enable_torque": false})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["torque"], test.ShouldEqual, "disabled")
	test.That(t, bus.Torque[2], test.ShouldBeFalse)

	_, err = h.DoCommand(ctx, map[string]interface{}{"enable_torque": "yes"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRateControlKeepsMoving(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHandFrom(t, config.Hand{Port: "/dev/null", Preset: "model-w", TickMillis: 1})

	// control 5 drives channel 1 at full rate toward its high limit
	_, err := h.DoCommand(ctx, map[string]interface{}{
		"control": map[string]interface{}{"control_id": 5.0, "value": 127.0},
	})
	test.That(t, err, test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.goal(1), test.ShouldEqual, 540)
	})
	test.That(t, bus.LastWrite()[1], test.ShouldEqual, 540)

	// centred knob holds position
	_, err = h.DoCommand(ctx, map[string]interface{}{
		"control": map[string]interface{}{"control_id": 5.0, "value": 63.0},
	})
	test.That(t, err, test.ShouldBeNil)
	time.Sleep(20 * time.Millisecond)
	test.That(t, h.goal(1), test.ShouldEqual, 540)
	test.That(t, h.goal(2), test.ShouldEqual, 290)
}

func TestCloseStopsTicking(t *testing.T) {
	ctx := context.Background()
	h, bus, _ := newTestHandFrom(t, config.Hand{Port: "/dev/null", Preset: "model-w", TickMillis: 1})

	_, err := h.DoCommand(ctx, map[string]interface{}{
		"control": map[string]interface{}{"control_id": 3.0, "value": 127.0},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.Close(ctx), test.ShouldBeNil)

	writes := bus.WriteCount()
	time.Sleep(20 * time.Millisecond)
	test.That(t, bus.WriteCount(), test.ShouldEqual, writes)
}

func TestLoadTrajectoryRejectsEmptyChannel(t *testing.T) {
	h, _, _ := newTestHand(t, "2v2")
	_, err := h.DoCommand(context.Background(), map[string]interface{}{
		"load_trajectory": map[string]interface{}{
			"1": []interface{}{},
			"2": []interface{}{0.1},
		},
	})
	test.That(t, err, test.ShouldNotBeNil)
}
