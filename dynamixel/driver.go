package dynamixel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	protocol "github.com/haguro/go-dxl/protocol/v2"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// ErrNotOpen is returned when operations are attempted on a closed driver.
var ErrNotOpen = errors.New("driver not open")

// BulkWriteError reports the channels whose goal position could not be written
// in a bulk transaction. Channels not listed were written.
type BulkWriteError struct {
	Failures map[int]error
}

func (e *BulkWriteError) Error() string {
	ids := make([]int, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("motor %d: %v", id, e.Failures[id]))
	}
	return "bulk write failed for " + strings.Join(parts, "; ")
}

// ChannelFailures returns the per-motor failures keyed by motor id.
func (e *BulkWriteError) ChannelFailures() map[int]error {
	return e.Failures
}

// Driver provides thread-safe communication with Dynamixel motors.
type Driver struct {
	port     serial.Port
	handler  *protocol.Handler
	profile  Profile
	portName string
	logger   logging.Logger
	mu       sync.Mutex
	isOpen   bool
}

// NewDriver creates and opens a new Dynamixel driver.
func NewDriver(portName string, baudRate int, profile Profile, logger logging.Logger) (*Driver, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	handler := protocol.NewHandler(port, 100*time.Millisecond)

	logger.Infof("opened %s at %d baud (%s control table)", portName, baudRate, profile.Name)
	return &Driver{
		port:     port,
		handler:  handler,
		profile:  profile,
		portName: portName,
		logger:   logger,
		isOpen:   true,
	}, nil
}

// Profile returns the control table the driver addresses.
func (d *Driver) Profile() Profile {
	return d.profile
}

// Close closes the driver and releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isOpen {
		return nil
	}

	d.isOpen = false
	return d.port.Close()
}

// checkOpen verifies the driver is open.
func (d *Driver) checkOpen() error {
	if !d.isOpen {
		return ErrNotOpen
	}
	return nil
}

// EnableTorque enables torque on a single motor.
func (d *Driver) EnableTorque(motorID int) error {
	return d.writeTorque(motorID, TorqueEnable)
}

// DisableTorque disables torque on a single motor.
func (d *Driver) DisableTorque(motorID int) error {
	return d.writeTorque(motorID, TorqueDisable)
}

func (d *Driver) writeTorque(motorID int, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	if err := d.handler.Write(byte(motorID), d.profile.AddrTorqueEnable, value); err != nil {
		// Ignore hardware errors (motor may have stale error flag)
		if d.tolerate(motorID, err, "torque") {
			return nil
		}
		return errors.Wrapf(err, "failed to write torque %d on motor %d", value, motorID)
	}
	return nil
}

// WriteGoalPositions writes raw goal positions for several motors in one
// locked transaction. Every motor is attempted even when an earlier one fails;
// failures come back as a *BulkWriteError.
func (d *Driver) WriteGoalPositions(goals map[int]int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	ids := make([]int, 0, len(goals))
	for id := range goals {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var failures map[int]error
	for _, id := range ids {
		data := EncodePosition(goals[id], d.profile.PositionLen)
		if err := d.handler.Write(byte(id), d.profile.AddrGoalPosition, data...); err != nil {
			// Data limit errors still move the motor to the closest valid position.
			if d.tolerate(id, err, fmt.Sprintf("goal %d", goals[id])) {
				continue
			}
			if failures == nil {
				failures = make(map[int]error)
			}
			failures[id] = err
		}
	}

	if failures != nil {
		return &BulkWriteError{Failures: failures}
	}
	return nil
}

// ReadPresentPositions reads the raw present position of each motor.
func (d *Driver) ReadPresentPositions(motorIDs []int) (map[int]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	positions := make(map[int]int, len(motorIDs))
	for _, id := range motorIDs {
		data, err := d.handler.Read(byte(id), d.profile.AddrPresentPosition, d.profile.PositionLen)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read position from motor %d", id)
		}
		positions[id] = DecodePosition(data, d.profile.PositionLen)
	}
	return positions, nil
}

// IsMoving reports whether any motor reports motion through its moving register.
func (d *Driver) IsMoving(motorIDs []int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return false, err
	}

	for _, id := range motorIDs {
		data, err := d.handler.Read(byte(id), d.profile.AddrMoving, 1)
		if err != nil {
			return false, errors.Wrapf(err, "failed to read moving status from motor %d", id)
		}
		if len(data) > 0 && data[0] != 0 {
			return true, nil
		}
	}

	return false, nil
}

// Reboot reboots a motor to clear hardware errors.
func (d *Driver) Reboot(motorID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkOpen(); err != nil {
		return err
	}

	if err := d.handler.Reboot(byte(motorID)); err != nil {
		return errors.Wrapf(err, "failed to reboot motor %d", motorID)
	}

	// Give the motor time to reboot
	time.Sleep(500 * time.Millisecond)
	return nil
}

// tolerate logs and reports whether err is a status error the write survives.
func (d *Driver) tolerate(motorID int, err error, what string) bool {
	if !isHardwareError(err) {
		return false
	}
	d.logger.Debugf("motor %d reported %v while writing %s", motorID, err, what)
	return true
}

// isHardwareError checks if the error is a Dynamixel hardware error
// (as opposed to a communication error)
func isHardwareError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "data limit error") ||
		strings.Contains(errStr, "processing error") ||
		strings.Contains(errStr, "hardware error") ||
		strings.Contains(errStr, "overload error") ||
		strings.Contains(errStr, "overheating error")
}

// Shared drivers, one per serial port, so several hand components can sit on one bus.

type sharedDriver struct {
	driver   *Driver
	refCount int
}

var (
	drivers  = map[string]*sharedDriver{}
	driverMu sync.Mutex
)

// GetDriver returns a shared driver instance for the given port.
// Multiple calls with the same port will return the same driver.
func GetDriver(portName string, baudRate int, profile Profile, logger logging.Logger) (*Driver, error) {
	driverMu.Lock()
	defer driverMu.Unlock()

	if shared, ok := drivers[portName]; ok {
		if shared.driver.profile.Name != profile.Name {
			return nil, errors.Errorf("port %s already open with %s control table, not %s",
				portName, shared.driver.profile.Name, profile.Name)
		}
		shared.refCount++
		logger.Debugf("reusing driver for %s, refCount=%d", portName, shared.refCount)
		return shared.driver, nil
	}

	driver, err := NewDriver(portName, baudRate, profile, logger)
	if err != nil {
		return nil, err
	}

	drivers[portName] = &sharedDriver{driver: driver, refCount: 1}
	return driver, nil
}

// ReleaseDriver decrements the reference count and closes the driver when no longer in use.
func ReleaseDriver(portName string) {
	driverMu.Lock()
	defer driverMu.Unlock()

	shared, ok := drivers[portName]
	if !ok {
		return
	}

	shared.refCount--
	if shared.refCount <= 0 {
		if err := shared.driver.Close(); err != nil {
			shared.driver.logger.Warnf("failed to close %s: %v", portName, err)
		}
		delete(drivers, portName)
	}
}
