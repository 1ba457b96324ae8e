// Package dynamixel provides low-level Dynamixel motor communication for the hand.
package dynamixel

import (
	"strings"

	"github.com/pkg/errors"
)

// Protocol and communication constants.
const (
	DefaultBaudRate = 57600

	TorqueEnable  byte = 1
	TorqueDisable byte = 0

	// MaxID is the highest addressable servo id (253 is reserved for broadcast-adjacent use).
	MaxID = 252

	// DefaultMovingThreshold is how far (in ticks) a present position may sit
	// from its goal before the servo still counts as moving.
	DefaultMovingThreshold = 10
)

// Profile describes the control table layout of one servo family.
type Profile struct {
	Name                string
	AddrTorqueEnable    uint16
	AddrGoalPosition    uint16
	AddrPresentPosition uint16
	AddrMoving          uint16
	PositionLen         uint16 // width of the goal and present position registers
	MaxPosition         int
}

// Control tables (Protocol 2.0).
var (
	// ProfileXM covers the X series (XM430, XL430, ...).
	ProfileXM = Profile{
		Name:                "xm",
		AddrTorqueEnable:    64,
		AddrGoalPosition:    116,
		AddrPresentPosition: 132,
		AddrMoving:          122,
		PositionLen:         4,
		MaxPosition:         4095,
	}

	// ProfileXL320 covers the XL-320, which sweeps 300 degrees over 1024 steps.
	ProfileXL320 = Profile{
		Name:                "xl320",
		AddrTorqueEnable:    24,
		AddrGoalPosition:    30,
		AddrPresentPosition: 37,
		AddrMoving:          49,
		PositionLen:         2,
		MaxPosition:         1023,
	}
)

// DefaultProfile is used when no profile is configured.
var DefaultProfile = ProfileXL320

// ProfileByName looks up a control table by its short name.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case "":
		return DefaultProfile, nil
	case ProfileXM.Name:
		return ProfileXM, nil
	case ProfileXL320.Name, "xl-320":
		return ProfileXL320, nil
	default:
		return Profile{}, errors.Errorf("unknown servo profile %q", name)
	}
}
