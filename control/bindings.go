package control

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/clintpurser/dxlhand/calibration"
	"github.com/clintpurser/dxlhand/mapping"
)

// DefaultModeSwitchControl is the controller id that flips between modes.
const DefaultModeSwitchControl = 46

// Mode selects which binding table is live.
type Mode int

const (
	// Main drives several fingers from few controls.
	Main Mode = iota
	// Individual gives each channel its own control.
	Individual
)

func (m Mode) String() string {
	if m == Individual {
		return "individual"
	}
	return "main"
}

// ParseMode reads "main" or "individual".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "main":
		return Main, nil
	case "individual":
		return Individual, nil
	default:
		return Main, errors.Errorf("unknown control mode %q", s)
	}
}

// ControlEvent is one control-surface change: a control id and its 0..127 value.
type ControlEvent struct {
	ControlID int
	Value     int
}

// Binding routes one control, in one mode, to one or more channels.
type Binding struct {
	Mode      Mode
	ControlID int
	Channels  []int
	Policy    mapping.Policy
}

type bindingKey struct {
	mode    Mode
	control int
}

// Bindings is the control id lookup table.
type Bindings struct {
	modeSwitch  int
	table       map[bindingKey]Binding
	incremental map[Mode][]int
}

// NewBindings validates bindings against the calibration map.
func NewBindings(cal *calibration.Map, modeSwitch int, bindings ...Binding) (*Bindings, error) {
	b := &Bindings{
		modeSwitch:  modeSwitch,
		table:       make(map[bindingKey]Binding, len(bindings)),
		incremental: make(map[Mode][]int),
	}
	seenIncremental := map[bindingKey]bool{}
	for _, binding := range bindings {
		if binding.ControlID == modeSwitch {
			return nil, errors.Errorf("control %d is reserved for switching modes", modeSwitch)
		}
		if len(binding.Channels) == 0 {
			return nil, errors.Errorf("control %d in %s mode has no channels", binding.ControlID, binding.Mode)
		}
		key := bindingKey{binding.Mode, binding.ControlID}
		if _, dup := b.table[key]; dup {
			return nil, errors.Errorf("control %d bound twice in %s mode", binding.ControlID, binding.Mode)
		}
		for _, id := range binding.Channels {
			if _, err := cal.Channel(id); err != nil {
				return nil, errors.Wrapf(err, "control %d", binding.ControlID)
			}
			if binding.Policy != mapping.Incremental {
				continue
			}
			chKey := bindingKey{binding.Mode, id}
			if seenIncremental[chKey] {
				return nil, errors.Errorf("channel %d has two rate controls in %s mode", id, binding.Mode)
			}
			seenIncremental[chKey] = true
			b.incremental[binding.Mode] = append(b.incremental[binding.Mode], id)
		}
		binding.Channels = append([]int(nil), binding.Channels...)
		b.table[key] = binding
	}
	for _, ids := range b.incremental {
		sort.Ints(ids)
	}
	return b, nil
}

// ModeSwitch returns the control id that toggles the mode.
func (b *Bindings) ModeSwitch() int {
	return b.modeSwitch
}

// Lookup finds the binding of a control in a mode.
func (b *Bindings) Lookup(mode Mode, controlID int) (Binding, bool) {
	binding, ok := b.table[bindingKey{mode, controlID}]
	return binding, ok
}

// IncrementalChannels lists the rate-controlled channels of a mode.
func (b *Bindings) IncrementalChannels(mode Mode) []int {
	return b.incremental[mode]
}
