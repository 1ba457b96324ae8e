// Package gripper provides a Viam gripper component for a Dynamixel hand.
package gripper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"

	"github.com/clintpurser/dxlhand/config"
	"github.com/clintpurser/dxlhand/control"
	"github.com/clintpurser/dxlhand/dynamixel"
	"github.com/clintpurser/dxlhand/trajectory"
)

// Model is the Viam model for the hand.
var Model = resource.NewModel("clint", "dxlhand", "dynamixel-hand")

func init() {
	resource.RegisterComponent(gripper.API, Model, resource.Registration[gripper.Gripper, *Config]{
		Constructor: NewDynamixelHand,
	})
}

// Config is the component form of config.Hand.
type Config config.Hand

// Validate validates the config.
func (c *Config) Validate(path string) ([]string, []string, error) {
	if c.Port == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "usb_port")
	}
	hand, err := config.Hand(*c).WithDefaults()
	if err != nil {
		return nil, nil, resource.NewConfigValidationError(path, err)
	}
	if err := hand.Validate(true); err != nil {
		return nil, nil, resource.NewConfigValidationError(path, err)
	}
	return nil, nil, nil
}

// dynamixelHand implements the gripper.Gripper interface.
type dynamixelHand struct {
	resource.Named
	resource.AlwaysRebuild

	mu        sync.Mutex
	bus       control.Bus
	ctrl      *control.Controller
	player    *trajectory.Player
	hand      config.Hand
	release   func()
	logger    logging.Logger
	threshold int

	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewDynamixelHand creates a hand on a shared Dynamixel bus.
func NewDynamixelHand(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (gripper.Gripper, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	hand, err := config.Hand(*cfg).WithDefaults()
	if err != nil {
		return nil, err
	}
	profile, err := hand.ServoProfile()
	if err != nil {
		return nil, err
	}

	driver, err := dynamixel.GetDriver(hand.Port, hand.BaudRate, profile, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get Dynamixel driver")
	}
	release := func() { dynamixel.ReleaseDriver(hand.Port) }

	h, err := newHand(conf.ResourceName(), hand, driver, release, logger)
	if err != nil {
		release()
		return nil, err
	}
	logger.Infof("Dynamixel hand initialized on %s with %d channels", hand.Port, len(hand.Channels))
	return h, nil
}

// newHand wires a hand to any bus. release runs once on Close.
func newHand(name resource.Name, hand config.Hand, bus control.Bus, release func(), logger logging.Logger) (*dynamixelHand, error) {
	cal, err := hand.CalibrationMap()
	if err != nil {
		return nil, err
	}
	bindings, err := hand.ControlBindings(cal)
	if err != nil {
		return nil, err
	}

	h := &dynamixelHand{
		Named:     name.AsNamed(),
		bus:       bus,
		ctrl:      control.NewController(cal, bindings, bus, logger),
		hand:      hand,
		release:   release,
		logger:    logger,
		threshold: hand.MovingThreshold,
	}
	if len(hand.Trajectory) > 0 {
		if err := h.loadTrajectory(hand.Trajectory); err != nil {
			return nil, err
		}
	}

	if err := h.ctrl.Start(); err != nil {
		h.ctrl.Shutdown()
		return nil, errors.Wrap(err, "failed to enable torque")
	}
	if err := h.ctrl.Resend(); err != nil {
		h.logger.Warnf("failed to write rest positions: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.workers.Add(1)
	utils.ManagedGo(func() { h.tickLoop(ctx, hand.TickPeriod()) }, h.workers.Done)
	return h, nil
}

// tickLoop advances rate-controlled channels by their held knob values and
// retries goals that failed to send.
func (h *dynamixelHand) tickLoop(ctx context.Context, period time.Duration) {
	for {
		if !utils.SelectContextOrWait(ctx, period) {
			return
		}
		h.mu.Lock()
		err := h.ctrl.Tick(nil)
		h.mu.Unlock()
		if err != nil {
			h.logger.Debugf("tick: %v", err)
		}
	}
}

func (h *dynamixelHand) loadTrajectory(angles map[int][]float64) error {
	traj, err := trajectory.New(angles)
	if err != nil {
		return err
	}
	player, err := trajectory.NewPlayer(traj, h.ctrl.Calibration(), h.logger,
		trajectory.WithClamp(h.hand.ClampTrajectory), trajectory.WithLoop(h.hand.LoopTrajectory))
	if err != nil {
		return err
	}
	h.player = player
	return nil
}

// pose builds a goal for every channel from its low or high limit.
func (h *dynamixelHand) pose(high bool) []control.GoalPosition {
	cal := h.ctrl.Calibration()
	goals := make([]control.GoalPosition, 0, cal.Len())
	for _, id := range cal.IDs() {
		ch, _ := cal.Channel(id)
		value := ch.Low
		if high {
			value = ch.High
		}
		goals = append(goals, control.GoalPosition{ChannelID: id, Value: value})
	}
	return goals
}

// Open releases every finger.
func (h *dynamixelHand) Open(ctx context.Context, extra map[string]interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ctrl.Apply(h.pose(false))
}

// Grab closes every finger.
func (h *dynamixelHand) Grab(ctx context.Context, extra map[string]interface{}) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ctrl.Apply(h.pose(true)); err != nil {
		return false, err
	}
	// No load sensing on these servos, so a completed grab is reported as held.
	return true, nil
}

// IsHoldingSomething returns whether the hand is holding something.
func (h *dynamixelHand) IsHoldingSomething(ctx context.Context, extra map[string]interface{}) (gripper.HoldingStatus, error) {
	return gripper.HoldingStatus{IsHoldingSomething: false}, nil
}

// Stop holds every servo where it is.
func (h *dynamixelHand) Stop(ctx context.Context, extra map[string]interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	present, err := h.bus.ReadPresentPositions(h.ctrl.Calibration().IDs())
	if err != nil {
		return err
	}
	goals := make([]control.GoalPosition, 0, len(present))
	for _, id := range h.ctrl.Calibration().IDs() {
		if pos, ok := present[id]; ok {
			goals = append(goals, control.GoalPosition{ChannelID: id, Value: pos})
		}
	}
	return h.ctrl.Apply(goals)
}

// movingReporter is a bus that exposes the servos' own moving flag.
type movingReporter interface {
	IsMoving(motorIDs []int) (bool, error)
}

// IsMoving reports whether any servo is further than the moving threshold
// from its goal, or flags itself as moving.
func (h *dynamixelHand) IsMoving(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := h.ctrl.Calibration().IDs()
	if mr, ok := h.bus.(movingReporter); ok {
		moving, err := mr.IsMoving(ids)
		if err != nil {
			return false, err
		}
		if moving {
			return true, nil
		}
	}
	present, err := h.bus.ReadPresentPositions(ids)
	if err != nil {
		return false, err
	}
	goals := h.ctrl.Goals()
	for _, id := range ids {
		diff := goals[id] - present[id]
		if diff < 0 {
			diff = -diff
		}
		if diff > h.threshold {
			return true, nil
		}
	}
	return false, nil
}

// Geometries returns the geometries of the hand.
func (h *dynamixelHand) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	// Approximate envelope of the open hand: 120mm x 90mm x 60mm
	box, err := spatialmath.NewBox(spatialmath.NewZeroPose(), r3.Vector{X: 120, Y: 90, Z: 60}, h.Name().ShortName())
	if err != nil {
		return nil, err
	}
	return []spatialmath.Geometry{box}, nil
}

// ModelFrame returns nil as the hand has no kinematic model.
func (h *dynamixelHand) ModelFrame() referenceframe.Model {
	return nil
}

// Kinematics returns nil as the hand has no kinematic model.
func (h *dynamixelHand) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	return nil, nil
}

// CurrentInputs returns the goal position of every channel in id order.
func (h *dynamixelHand) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	goals := h.ctrl.Goals()
	ids := h.ctrl.Calibration().IDs()
	inputs := make([]referenceframe.Input, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, referenceframe.Input(goals[id]))
	}
	return inputs, nil
}

// GoToInputs writes raw goal positions, one input per channel in id order.
func (h *dynamixelHand) GoToInputs(ctx context.Context, inputSteps ...[]referenceframe.Input) error {
	ids := h.ctrl.Calibration().IDs()
	for _, step := range inputSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(step) != len(ids) {
			return errors.Errorf("expected %d inputs, got %d", len(ids), len(step))
		}
		goals := make([]control.GoalPosition, 0, len(ids))
		for i, id := range ids {
			goals = append(goals, control.GoalPosition{ChannelID: id, Value: int(step[i])})
		}
		h.mu.Lock()
		err := h.ctrl.Apply(goals)
		h.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// DoCommand handles custom commands.
func (h *dynamixelHand) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make(map[string]interface{})

	if val, ok := cmd["set_mode"]; ok {
		name, ok := val.(string)
		if !ok {
			return nil, errors.New("set_mode must be a string")
		}
		mode, err := control.ParseMode(name)
		if err != nil {
			return nil, err
		}
		h.ctrl.SetMode(mode)
		result["mode"] = mode.String()
	}

	if val, ok := cmd["control"]; ok {
		ev, err := parseControlEvent(val)
		if err != nil {
			return nil, err
		}
		if err := h.ctrl.Tick([]control.ControlEvent{ev}); err != nil {
			return nil, err
		}
		result["mode"] = h.ctrl.Mode().String()
	}

	if val, ok := cmd["load_trajectory"]; ok {
		angles, err := parseTrajectory(val)
		if err != nil {
			return nil, err
		}
		if err := h.loadTrajectory(angles); err != nil {
			return nil, err
		}
		result["steps"] = h.player.Len()
	}

	if _, ok := cmd["next_step"]; ok {
		if h.player == nil {
			return nil, errors.New("no trajectory loaded")
		}
		step, err := h.player.Next(h.ctrl)
		if err != nil {
			return nil, err
		}
		result["step"] = step
		result["steps"] = h.player.Len()
	}

	if val, ok := cmd["enable_torque"]; ok {
		enable, ok := val.(bool)
		if !ok {
			return nil, errors.New("enable_torque must be a boolean")
		}
		var err error
		if enable {
			err = h.ctrl.Start()
			result["torque"] = "enabled"
		} else {
			err = h.ctrl.Shutdown()
			result["torque"] = "disabled"
		}
		if err != nil {
			return nil, err
		}
	}

	if _, ok := cmd["get_goals"]; ok {
		result["goals"] = keyed(h.ctrl.Goals())
	}

	if _, ok := cmd["get_positions"]; ok {
		present, err := h.bus.ReadPresentPositions(h.ctrl.Calibration().IDs())
		if err != nil {
			return nil, err
		}
		result["positions"] = keyed(present)
	}

	return result, nil
}

// Close disables torque and releases the bus.
func (h *dynamixelHand) Close(ctx context.Context) error {
	h.cancel()
	h.workers.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.release == nil {
		return nil
	}
	if err := h.ctrl.Shutdown(); err != nil {
		h.logger.Warnf("failed to disable torque on close: %v", err)
	}
	h.release()
	h.release = nil

	h.logger.Info("Dynamixel hand closed")
	return nil
}

func parseControlEvent(val interface{}) (control.ControlEvent, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return control.ControlEvent{}, errors.New("control must be an object with control_id and value")
	}
	id, ok := m["control_id"].(float64)
	if !ok {
		return control.ControlEvent{}, errors.New("control.control_id must be a number")
	}
	value, ok := m["value"].(float64)
	if !ok {
		return control.ControlEvent{}, errors.New("control.value must be a number")
	}
	return control.ControlEvent{ControlID: int(id), Value: int(value)}, nil
}

func parseTrajectory(val interface{}) (map[int][]float64, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, errors.New("load_trajectory must map channel ids to angle lists")
	}
	angles := make(map[int][]float64, len(m))
	for key, raw := range m {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Errorf("load_trajectory: bad channel id %q", key)
		}
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Errorf("load_trajectory: channel %d must be a list of radians", id)
		}
		angles[id] = make([]float64, 0, len(list))
		for i, v := range list {
			rad, ok := v.(float64)
			if !ok {
				return nil, errors.Errorf("load_trajectory: channel %d step %d is not a number", id, i)
			}
			angles[id] = append(angles[id], rad)
		}
	}
	return angles, nil
}

func keyed(values map[int]int) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for id, v := range values {
		out[strconv.Itoa(id)] = v
	}
	return out
}
