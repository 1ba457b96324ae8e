// Package fake provides an in-memory servo bus for dry runs and tests.
package fake

import (
	"sync"

	"go.viam.com/rdk/logging"

	"github.com/clintpurser/dxlhand/dynamixel"
)

// Bus records every call instead of touching a serial port. Written goals
// become present positions immediately.
type Bus struct {
	mu     sync.Mutex
	logger logging.Logger

	Torque   map[int]bool
	Present  map[int]int
	Writes   []map[int]int
	Disabled []int

	// Injected per-motor failures.
	TorqueFailures map[int]error
	WriteFailures  map[int]error
	// WriteErr and ReadErr, when set, fail whole bulk transactions.
	WriteErr error
	ReadErr  error
}

// NewBus returns an empty fake bus. logger may be nil.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		logger:         logger,
		Torque:         map[int]bool{},
		Present:        map[int]int{},
		TorqueFailures: map[int]error{},
		WriteFailures:  map[int]error{},
	}
}

func (b *Bus) debugf(template string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Debugf(template, args...)
	}
}

// EnableTorque marks a motor as torqued.
func (b *Bus) EnableTorque(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.TorqueFailures[id]; err != nil {
		return err
	}
	b.Torque[id] = true
	b.debugf("torque on %d", id)
	return nil
}

// DisableTorque marks a motor as limp. Attempts are recorded even when they fail.
func (b *Bus) DisableTorque(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Disabled = append(b.Disabled, id)
	if err := b.TorqueFailures[id]; err != nil {
		return err
	}
	b.Torque[id] = false
	b.debugf("torque off %d", id)
	return nil
}

// WriteGoalPositions records one bulk write.
func (b *Bus) WriteGoalPositions(goals map[int]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.WriteErr != nil {
		return b.WriteErr
	}

	batch := make(map[int]int, len(goals))
	var failures map[int]error
	for id, v := range goals {
		if err := b.WriteFailures[id]; err != nil {
			if failures == nil {
				failures = map[int]error{}
			}
			failures[id] = err
			continue
		}
		batch[id] = v
		b.Present[id] = v
	}
	b.Writes = append(b.Writes, batch)
	b.debugf("bulk write %v", batch)

	if failures != nil {
		return &dynamixel.BulkWriteError{Failures: failures}
	}
	return nil
}

// ReadPresentPositions returns the last written value of each motor, or
// ReadErr when set. Motors never written read as 0.
func (b *Bus) ReadPresentPositions(ids []int) (map[int]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ReadErr != nil {
		return nil, b.ReadErr
	}
	out := make(map[int]int, len(ids))
	for _, id := range ids {
		out[id] = b.Present[id]
	}
	return out, nil
}

// WriteCount returns how many bulk writes were issued.
func (b *Bus) WriteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Writes)
}

// LastWrite returns the most recent bulk write, or nil.
func (b *Bus) LastWrite() map[int]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Writes) == 0 {
		return nil
	}
	return b.Writes[len(b.Writes)-1]
}
