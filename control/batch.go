package control

import (
	"github.com/pkg/errors"
)

// ErrTransmission wraps every failure reported by the bus during a bulk write.
var ErrTransmission = errors.New("transmission failure")

// Bus is the actuator bus the hand talks through. *dynamixel.Driver satisfies it.
type Bus interface {
	EnableTorque(id int) error
	DisableTorque(id int) error
	// WriteGoalPositions sends every entry in one bulk transaction.
	WriteGoalPositions(goals map[int]int) error
	ReadPresentPositions(ids []int) (map[int]int, error)
}

// channelFailer is implemented by bus errors that know which channels failed.
type channelFailer interface {
	ChannelFailures() map[int]error
}

// ChannelFailures extracts per-channel failures from a transmission error.
// It returns nil when the error does not carry per-channel detail.
func ChannelFailures(err error) map[int]error {
	var cf channelFailer
	if errors.As(err, &cf) {
		return cf.ChannelFailures()
	}
	return nil
}

// Assemble collapses goals into the id -> raw value batch handed to the bus.
func Assemble(goals []GoalPosition) map[int]int {
	batch := make(map[int]int, len(goals))
	for _, g := range goals {
		batch[g.ChannelID] = g.Value
	}
	return batch
}

// Transmit sends goals as a single bulk write. An empty batch sends nothing.
func Transmit(bus Bus, goals []GoalPosition) error {
	if len(goals) == 0 {
		return nil
	}
	if err := bus.WriteGoalPositions(Assemble(goals)); err != nil {
		return &TransmissionError{cause: err}
	}
	return nil
}

// TransmissionError is returned by Transmit. It matches ErrTransmission with errors.Is.
type TransmissionError struct {
	cause error
}

func (e *TransmissionError) Error() string {
	return ErrTransmission.Error() + ": " + e.cause.Error()
}

// Unwrap exposes the bus error.
func (e *TransmissionError) Unwrap() error { return e.cause }

// Is matches ErrTransmission.
func (e *TransmissionError) Is(target error) bool { return target == ErrTransmission }
