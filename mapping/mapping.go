// Package mapping converts abstract control signals (joint angles, controller
// knob values) into raw Dynamixel goal positions.
package mapping

import (
	"math"

	"github.com/clintpurser/dxlhand/calibration"
)

// Angle-to-register constants for servos sweeping 300 degrees over 1024 steps.
const (
	SweepDegrees   = 300.0
	SweepSteps     = 1024.0
	StepsPerDegree = SweepSteps / SweepDegrees
)

// Knob constants for 7-bit MIDI controllers.
const (
	KnobMax = 127
	// Values in [DeadZoneLow, DeadZoneHigh] hold the goal still.
	DeadZoneLow  = 50
	DeadZoneHigh = 77
	// RateDivisor scales knob deflection into ticks per update.
	RateDivisor = 5
	// KnobCenter is the assumed resting knob value before any input arrives.
	KnobCenter = 63
)

// Policy selects how a knob value becomes a goal position.
type Policy int

const (
	// Proportional maps the absolute knob position onto the channel's range.
	Proportional Policy = iota
	// Incremental treats knob deflection from center as a rate.
	Incremental
)

func (p Policy) String() string {
	if p == Incremental {
		return "incremental"
	}
	return "proportional"
}

// ToRegisterUnits converts a joint angle to register steps, truncating toward zero.
func ToRegisterUnits(radians float64) int {
	degrees := radians * 180 / math.Pi
	return int(degrees * StepsPerDegree)
}

// ToRegisterUnitsAll converts every angle, preserving order and length.
func ToRegisterUnitsAll(radians []float64) []int {
	units := make([]int, len(radians))
	for i, r := range radians {
		units[i] = ToRegisterUnits(r)
	}
	return units
}

// TrajectoryGoal offsets a converted angle from the rest position. The result
// is not clamped to the channel limits.
func TrajectoryGoal(rest, units int) int {
	return rest - units
}

// MapProportional linearly maps knob 0..127 onto low..high. Values outside
// 0..127 extrapolate.
func MapProportional(knob, low, high int) int {
	return int(float64(low) + (float64(knob)/KnobMax)*float64(high-low))
}

// MapIncremental nudges current toward low (knob below the dead zone) or
// toward high (knob above it). Moves stop hard at the channel's limits.
func MapIncremental(knob, current, low, high int, dir calibration.Direction) int {
	lo, hi := min(low, high), max(low, high)

	var next int
	switch {
	case knob < DeadZoneLow:
		delta := (DeadZoneLow - knob) / RateDivisor
		if dir == calibration.TowardLowIncreases {
			next = current + delta
		} else {
			next = current - delta
		}
	case knob > DeadZoneHigh:
		delta := (knob - DeadZoneHigh) / RateDivisor
		if dir == calibration.TowardLowIncreases {
			next = current - delta
		} else {
			next = current + delta
		}
	default:
		return current
	}
	return max(lo, min(next, hi))
}

// Map dispatches a knob value for one channel according to policy.
func Map(policy Policy, knob, current int, ch calibration.Channel) int {
	low, high := ch.Limits()
	if policy == Incremental {
		return MapIncremental(knob, current, low, high, ch.Direction())
	}
	return MapProportional(knob, low, high)
}
