package control

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/clintpurser/dxlhand/calibration"
	"github.com/clintpurser/dxlhand/mapping"
)

// MaxEventsPerTick bounds how many control events one tick consumes.
const MaxEventsPerTick = 5

// DefaultTickPeriod is the control loop period when none is configured.
const DefaultTickPeriod = 20 * time.Millisecond

// EventSource yields pending control events without blocking.
type EventSource interface {
	Poll(max int) []ControlEvent
}

// Controller owns the goal positions of one hand and the single loop that
// updates them. Callers that share it across goroutines must serialize access.
type Controller struct {
	cal      *calibration.Map
	bindings *Bindings
	bus      Bus
	logger   logging.Logger

	goals        *Goals
	held         map[int]int
	mode         Mode
	justSwitched bool
}

// NewController builds a controller with every goal at its rest position.
func NewController(cal *calibration.Map, bindings *Bindings, bus Bus, logger logging.Logger) *Controller {
	c := &Controller{
		cal:      cal,
		bindings: bindings,
		bus:      bus,
		logger:   logger,
		goals:    NewGoals(cal),
		held:     make(map[int]int),
		mode:     Main,
	}
	return c
}

// Calibration returns the channel map the controller drives.
func (c *Controller) Calibration() *calibration.Map {
	return c.cal
}

// Mode returns the active binding mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// SetMode switches the binding mode directly.
func (c *Controller) SetMode(mode Mode) {
	if mode != c.mode {
		c.logger.Infof("switching to %s control", mode)
	}
	c.mode = mode
	c.justSwitched = false
}

// Goals returns a copy of the current goal positions.
func (c *Controller) Goals() map[int]int {
	return c.goals.Snapshot()
}

// Start enables torque on every channel. Every channel is attempted.
func (c *Controller) Start() error {
	var err error
	for _, id := range c.cal.IDs() {
		if e := c.bus.EnableTorque(id); e != nil {
			c.logger.Warnf("failed to enable torque on channel %d: %v", id, e)
			err = multierr.Append(err, errors.Wrapf(e, "channel %d", id))
			continue
		}
		c.logger.Debugf("channel %d torque enabled", id)
	}
	return err
}

// Shutdown disables torque on every channel, carrying on past failures.
func (c *Controller) Shutdown() error {
	var err error
	for _, id := range c.cal.IDs() {
		if e := c.bus.DisableTorque(id); e != nil {
			c.logger.Warnf("failed to disable torque on channel %d: %v", id, e)
			err = multierr.Append(err, errors.Wrapf(e, "channel %d", id))
		}
	}
	if err == nil {
		c.logger.Info("torque disabled on all channels")
	}
	return err
}

// HandleEvent applies one control event. Proportional bindings update goals
// immediately; incremental bindings only latch the knob value for the next tick.
func (c *Controller) HandleEvent(ev ControlEvent) {
	if ev.ControlID == c.bindings.ModeSwitch() {
		// The switch reports press and release; flip on the second.
		c.justSwitched = !c.justSwitched
		if !c.justSwitched {
			c.mode = 1 - c.mode
			c.logger.Infof("switching to %s control", c.mode)
		}
		return
	}

	binding, ok := c.bindings.Lookup(c.mode, ev.ControlID)
	if !ok {
		c.logger.Debugf("control %d unbound in %s mode", ev.ControlID, c.mode)
		return
	}

	for _, id := range binding.Channels {
		if binding.Policy == mapping.Incremental {
			c.held[id] = ev.Value
			continue
		}
		ch, err := c.cal.Channel(id)
		if err != nil {
			c.logger.Warnf("control %d: %v", ev.ControlID, err)
			continue
		}
		cur, _ := c.goals.Get(id)
		c.goals.Set(id, ch.Clamp(mapping.Map(mapping.Proportional, ev.Value, cur, ch)))
	}
}

// Tick consumes events, advances every rate-controlled channel of the active
// mode by its latched knob value, and transmits the changed goals.
func (c *Controller) Tick(events []ControlEvent) error {
	for _, ev := range events {
		c.HandleEvent(ev)
	}

	for _, id := range c.bindings.IncrementalChannels(c.mode) {
		ch, err := c.cal.Channel(id)
		if err != nil {
			continue
		}
		knob, ok := c.held[id]
		if !ok {
			knob = mapping.KnobCenter
		}
		cur, _ := c.goals.Get(id)
		c.goals.Set(id, mapping.Map(mapping.Incremental, knob, cur, ch))
	}

	return c.Flush()
}

// Apply sets explicit goals (trajectory steps, open/close poses) and transmits them.
func (c *Controller) Apply(goals []GoalPosition) error {
	for _, g := range goals {
		if _, ok := c.goals.Get(g.ChannelID); !ok {
			return errors.Wrapf(calibration.ErrUnknownChannel, "channel %d", g.ChannelID)
		}
	}
	for _, g := range goals {
		c.goals.Set(g.ChannelID, g.Value)
	}
	return c.Flush()
}

// Resend queues every goal so the next flush rewrites the whole hand.
func (c *Controller) Resend() error {
	c.goals.MarkAll()
	return c.Flush()
}

// Flush transmits pending goals in one batch. Channels that fail stay pending
// and go out again with the next batch.
func (c *Controller) Flush() error {
	pending := c.goals.Dirty()
	if len(pending) == 0 {
		return nil
	}

	err := Transmit(c.bus, pending)
	failures := ChannelFailures(err)
	if err != nil && failures == nil {
		c.logger.Warnf("bulk write of %d goals failed: %v", len(pending), err)
		return err
	}

	for _, g := range pending {
		if cause, failed := failures[g.ChannelID]; failed {
			c.logger.Warnf("channel %d goal %d not written: %v", g.ChannelID, g.Value, cause)
			continue
		}
		c.goals.Sent(g.ChannelID)
	}
	return err
}

// Run polls src every period until ctx is done. Transmission failures are
// logged and retried on the next tick.
func (c *Controller) Run(ctx context.Context, src EventSource, period time.Duration) error {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	c.logger.Infof("control loop running every %s in %s mode", period, c.mode)
	for {
		if !utils.SelectContextOrWait(ctx, period) {
			return nil
		}
		if err := c.Tick(src.Poll(MaxEventsPerTick)); err != nil {
			c.logger.Debugf("tick: %v", err)
		}
	}
}
