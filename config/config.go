// Package config describes a hand: its serial bus, servo calibration and
// controller bindings. The same attributes back the Viam component and the
// handctl YAML file.
package config

import (
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/clintpurser/dxlhand/calibration"
	"github.com/clintpurser/dxlhand/control"
	"github.com/clintpurser/dxlhand/dynamixel"
	"github.com/clintpurser/dxlhand/mapping"
	"github.com/clintpurser/dxlhand/trajectory"
)

// Channel is the calibration of one servo.
type Channel struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Rest int    `json:"rest_position" yaml:"rest_position"`
	Low  int    `json:"low" yaml:"low"`
	High int    `json:"high" yaml:"high"`
}

// Binding routes a controller knob to channels.
type Binding struct {
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Control  int    `json:"control" yaml:"control"`
	Channels []int  `json:"channels" yaml:"channels"`
	Policy   string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Hand is the full configuration of one hand.
type Hand struct {
	Port            string            `json:"usb_port" yaml:"usb_port"`
	BaudRate        int               `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	Profile         string            `json:"profile,omitempty" yaml:"profile,omitempty"`
	Preset          string            `json:"preset,omitempty" yaml:"preset,omitempty"`
	Channels        []Channel         `json:"channels,omitempty" yaml:"channels,omitempty"`
	Bindings        []Binding         `json:"bindings,omitempty" yaml:"bindings,omitempty"`
	ModeSwitch      *int              `json:"mode_switch_control,omitempty" yaml:"mode_switch_control,omitempty"`
	TickMillis      int               `json:"tick_ms,omitempty" yaml:"tick_ms,omitempty"`
	MovingThreshold int               `json:"moving_threshold,omitempty" yaml:"moving_threshold,omitempty"`
	MIDIInput       string            `json:"midi_input,omitempty" yaml:"midi_input,omitempty"`
	ClampTrajectory bool              `json:"clamp_trajectory,omitempty" yaml:"clamp_trajectory,omitempty"`
	LoopTrajectory  bool              `json:"loop_trajectory,omitempty" yaml:"loop_trajectory,omitempty"`
	Trajectory      map[int][]float64 `json:"trajectory,omitempty" yaml:"trajectory,omitempty"`
}

// Load reads a YAML hand file.
func Load(path string) (*Hand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	var h Hand
	if err := yaml.UnmarshalStrict(data, &h); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return &h, nil
}

// WithDefaults fills empty fields from the preset and built-in defaults.
func (h Hand) WithDefaults() (Hand, error) {
	if h.Preset != "" {
		preset, ok := Presets[h.Preset]
		if !ok {
			return h, errors.Errorf("unknown preset %q", h.Preset)
		}
		if h.Profile == "" {
			h.Profile = preset.Profile
		}
		if len(h.Channels) == 0 {
			h.Channels = preset.Channels
		}
		if len(h.Bindings) == 0 {
			h.Bindings = preset.Bindings
		}
	}
	if h.BaudRate == 0 {
		h.BaudRate = dynamixel.DefaultBaudRate
	}
	if h.ModeSwitch == nil {
		ms := control.DefaultModeSwitchControl
		h.ModeSwitch = &ms
	}
	if h.TickMillis == 0 {
		h.TickMillis = int(control.DefaultTickPeriod / time.Millisecond)
	}
	if h.MovingThreshold == 0 {
		h.MovingThreshold = dynamixel.DefaultMovingThreshold
	}
	return h, nil
}

// Validate checks the configuration after defaults have been applied.
// requirePort is false for dry runs.
func (h Hand) Validate(requirePort bool) error {
	if requirePort && h.Port == "" {
		return errors.New("usb_port is required")
	}
	if len(h.Channels) == 0 {
		return errors.New("no channels configured (set channels or a preset)")
	}
	if h.BaudRate < 0 || h.TickMillis < 0 || h.MovingThreshold < 0 {
		return errors.New("baud_rate, tick_ms and moving_threshold must not be negative")
	}
	profile, err := dynamixel.ProfileByName(h.Profile)
	if err != nil {
		return err
	}
	for _, c := range h.Channels {
		for _, v := range []int{c.Rest, c.Low, c.High} {
			if v < 0 || v > profile.MaxPosition {
				return errors.Errorf("channel %d: position %d outside 0..%d of the %s control table",
					c.ID, v, profile.MaxPosition, profile.Name)
			}
		}
	}
	cal, err := h.CalibrationMap()
	if err != nil {
		return err
	}
	if _, err := h.ControlBindings(cal); err != nil {
		return err
	}
	if len(h.Trajectory) > 0 {
		if _, err := h.LoadTrajectory(cal); err != nil {
			return err
		}
	}
	return nil
}

// ServoProfile resolves the control table.
func (h Hand) ServoProfile() (dynamixel.Profile, error) {
	return dynamixel.ProfileByName(h.Profile)
}

// TickPeriod returns the control loop period.
func (h Hand) TickPeriod() time.Duration {
	if h.TickMillis <= 0 {
		return control.DefaultTickPeriod
	}
	return time.Duration(h.TickMillis) * time.Millisecond
}

// CalibrationMap builds the channel map.
func (h Hand) CalibrationMap() (*calibration.Map, error) {
	channels := make([]calibration.Channel, 0, len(h.Channels))
	for _, c := range h.Channels {
		channels = append(channels, calibration.Channel{ID: c.ID, Name: c.Name, Rest: c.Rest, Low: c.Low, High: c.High})
	}
	return calibration.NewMap(channels...)
}

// ControlBindings builds the control lookup table.
func (h Hand) ControlBindings(cal *calibration.Map) (*control.Bindings, error) {
	modeSwitch := control.DefaultModeSwitchControl
	if h.ModeSwitch != nil {
		modeSwitch = *h.ModeSwitch
	}
	bindings := make([]control.Binding, 0, len(h.Bindings))
	for _, b := range h.Bindings {
		mode, err := control.ParseMode(b.Mode)
		if err != nil {
			return nil, err
		}
		policy, err := ParsePolicy(b.Policy)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, control.Binding{Mode: mode, ControlID: b.Control, Channels: b.Channels, Policy: policy})
	}
	return control.NewBindings(cal, modeSwitch, bindings...)
}

// LoadTrajectory builds a player for the configured trajectory.
func (h Hand) LoadTrajectory(cal *calibration.Map) (*trajectory.Trajectory, error) {
	if len(h.Trajectory) == 0 {
		return nil, trajectory.ErrEmpty
	}
	traj, err := trajectory.New(h.Trajectory)
	if err != nil {
		return nil, err
	}
	for _, id := range traj.ChannelIDs() {
		if _, err := cal.Channel(id); err != nil {
			return nil, errors.Wrap(err, "trajectory")
		}
	}
	return traj, nil
}

// ParsePolicy reads "proportional" (default) or "incremental".
func ParsePolicy(s string) (mapping.Policy, error) {
	switch s {
	case "", "proportional", "direct":
		return mapping.Proportional, nil
	case "incremental", "rate":
		return mapping.Incremental, nil
	default:
		return mapping.Proportional, errors.Errorf("unknown mapping policy %q", s)
	}
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
