// Package controlsurface reads control-change events from a MIDI controller
// such as a nanoKONTROL2.
package controlsurface

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/dxlhand/control"
)

// DefaultBuffer is how many undelivered events a Surface keeps.
const DefaultBuffer = 64

// Decode turns a control-change message into an event. The control id folds
// the MIDI channel into the high byte, so the same knob on two channels maps
// to two controls.
func Decode(msg midi.Message) (control.ControlEvent, bool) {
	var ch, cc, val uint8
	if !msg.GetControlChange(&ch, &cc, &val) {
		return control.ControlEvent{}, false
	}
	return control.ControlEvent{ControlID: int(cc) | int(ch)<<8, Value: int(val)}, true
}

// Surface buffers events from a MIDI input until the control loop polls them.
type Surface struct {
	logger logging.Logger
	events chan control.ControlEvent

	mu      sync.Mutex
	drv     *rtmididrv.Driver
	in      drivers.In
	stop    func()
	dropped int
}

func newSurface(logger logging.Logger, buffer int) *Surface {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Surface{logger: logger, events: make(chan control.ControlEvent, buffer)}
}

// Open listens on the MIDI input whose name contains name, or the first
// input when name is empty.
func Open(name string, logger logging.Logger) (*Surface, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start MIDI driver")
	}

	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, errors.Wrap(err, "failed to list MIDI inputs")
	}

	var found drivers.In
	for _, in := range ins {
		if name == "" || strings.Contains(in.String(), name) {
			found = in
			break
		}
	}
	if found == nil {
		drv.Close()
		return nil, errors.Errorf("MIDI input %q not found (%d inputs)", name, len(ins))
	}

	if err := found.Open(); err != nil {
		drv.Close()
		return nil, errors.Wrapf(err, "failed to open MIDI input %s", found)
	}

	s := newSurface(logger, DefaultBuffer)
	stop, err := midi.ListenTo(found, func(msg midi.Message, timestampms int32) {
		s.handle(msg)
	}, midi.HandleError(func(listenErr error) {
		logger.Warnf("MIDI listener error on %s: %v", found, listenErr)
	}))
	if err != nil {
		found.Close()
		drv.Close()
		return nil, errors.Wrap(err, "failed to start MIDI listener")
	}

	s.drv = drv
	s.in = found
	s.stop = stop
	logger.Infof("listening on MIDI input %s", found)
	return s, nil
}

// handle runs on the listener goroutine.
func (s *Surface) handle(msg midi.Message) {
	ev, ok := Decode(msg)
	if !ok {
		s.logger.Debugf("ignoring MIDI message %s", msg)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.logger.Warnf("control event buffer full, dropped %d events so far", dropped)
	}
}

// Poll returns up to max buffered events without blocking.
func (s *Surface) Poll(max int) []control.ControlEvent {
	var out []control.ControlEvent
	for len(out) < max {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// Dropped reports how many events were lost to a full buffer.
func (s *Surface) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops listening and releases the MIDI driver.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	var err error
	if s.in != nil {
		err = s.in.Close()
		s.in = nil
	}
	if s.drv != nil {
		if cerr := s.drv.Close(); err == nil {
			err = cerr
		}
		s.drv = nil
	}
	return err
}
