package trajectory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/clintpurser/dxlhand/calibration"
	"github.com/clintpurser/dxlhand/control"
	"github.com/clintpurser/dxlhand/mapping"
)

// ErrFinished is returned by Player.Next once the last step has been played
// and looping is off.
var ErrFinished = errors.New("trajectory finished")

// Applier accepts a batch of goals. *control.Controller satisfies it.
type Applier interface {
	Apply(goals []control.GoalPosition) error
}

// Advancer blocks until the next step may be played.
type Advancer interface {
	Wait(ctx context.Context, step, total int) error
}

// AdvanceFunc adapts a function to Advancer.
type AdvanceFunc func(ctx context.Context, step, total int) error

// Wait calls f.
func (f AdvanceFunc) Wait(ctx context.Context, step, total int) error {
	return f(ctx, step, total)
}

// Every advances on a fixed period.
func Every(period time.Duration) Advancer {
	return AdvanceFunc(func(ctx context.Context, _, _ int) error {
		if !utils.SelectContextOrWait(ctx, period) {
			return ctx.Err()
		}
		return nil
	})
}

// LineAdvancer advances each time a line is read, printing a prompt first.
type LineAdvancer struct {
	prompt io.Writer
	lines  chan error
	done   chan struct{}
	once   sync.Once
}

// NewLineAdvancer reads lines from r in the background. Close stops the
// reader once its current read returns.
func NewLineAdvancer(r io.Reader, prompt io.Writer) *LineAdvancer {
	a := &LineAdvancer{prompt: prompt, lines: make(chan error), done: make(chan struct{})}
	go func() {
		defer close(a.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case a.lines <- nil:
			case <-a.done:
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case a.lines <- err:
		case <-a.done:
		}
	}()
	return a
}

// Wait prompts and blocks for the next line.
func (a *LineAdvancer) Wait(ctx context.Context, step, total int) error {
	if a.prompt != nil {
		fmt.Fprintf(a.prompt, "Press Enter to continue to next step. Step num: %d/%d\n", step, total)
	}
	select {
	case <-a.done:
		return io.EOF
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return io.EOF
	case err, ok := <-a.lines:
		if !ok {
			return io.EOF
		}
		return err
	}
}

// Close releases the reader goroutine.
func (a *LineAdvancer) Close() {
	a.once.Do(func() { close(a.done) })
}

// Player turns trajectory steps into goal positions: rest - register units.
type Player struct {
	traj   *Trajectory
	rest   map[int]int
	bounds map[int]calibration.Channel
	units  map[int][]int
	clamp  bool
	loop   bool
	next   int
	logger logging.Logger
}

// PlayerOption tunes a Player.
type PlayerOption func(*Player)

// WithClamp bounds every goal to its channel limits. Off by default.
func WithClamp(clamp bool) PlayerOption {
	return func(p *Player) { p.clamp = clamp }
}

// WithLoop restarts from the first step after the last.
func WithLoop(loop bool) PlayerOption {
	return func(p *Player) { p.loop = loop }
}

// NewPlayer converts every angle up front and checks the channels exist.
func NewPlayer(traj *Trajectory, cal *calibration.Map, logger logging.Logger, opts ...PlayerOption) (*Player, error) {
	p := &Player{
		traj:   traj,
		rest:   make(map[int]int),
		bounds: make(map[int]calibration.Channel),
		units:  make(map[int][]int),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, id := range traj.ChannelIDs() {
		ch, err := cal.Channel(id)
		if err != nil {
			return nil, errors.Wrap(err, "trajectory")
		}
		p.rest[id] = ch.Rest
		p.bounds[id] = ch
		p.units[id] = mapping.ToRegisterUnitsAll(traj.Angles(id))
	}
	return p, nil
}

// Len returns the number of steps.
func (p *Player) Len() int {
	return p.traj.Len()
}

// Position returns the index of the next step to play.
func (p *Player) Position() int {
	return p.next
}

// Goals computes the goals of step i.
func (p *Player) Goals(i int) ([]control.GoalPosition, error) {
	if i < 0 || i >= p.traj.Len() {
		return nil, errors.Errorf("step %d outside 0..%d", i, p.traj.Len()-1)
	}
	goals := make([]control.GoalPosition, 0, len(p.units))
	for _, id := range p.traj.ChannelIDs() {
		goal := mapping.TrajectoryGoal(p.rest[id], p.units[id][i])
		if p.clamp {
			goal = p.bounds[id].Clamp(goal)
		}
		goals = append(goals, control.GoalPosition{ChannelID: id, Value: goal})
	}
	return goals, nil
}

// Next plays the next step and returns its index.
func (p *Player) Next(dst Applier) (int, error) {
	if p.next >= p.traj.Len() {
		if !p.loop {
			return p.next, ErrFinished
		}
		p.next = 0
	}
	step := p.next
	goals, err := p.Goals(step)
	if err != nil {
		return step, err
	}
	p.next++
	return step, dst.Apply(goals)
}

// Rewind moves back to the first step.
func (p *Player) Rewind() {
	p.next = 0
}

// Run plays every step, waiting on adv before each. Failed transmissions are
// logged and the replay carries on with the next step.
func (p *Player) Run(ctx context.Context, dst Applier, adv Advancer) error {
	for {
		if p.next >= p.traj.Len() && !p.loop {
			return nil
		}
		if err := adv.Wait(ctx, p.next, p.traj.Len()); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		step, err := p.Next(dst)
		switch {
		case errors.Is(err, ErrFinished):
			return nil
		case errors.Is(err, control.ErrTransmission):
			p.logger.Warnf("step %d: %v", step, err)
		case err != nil:
			return err
		default:
			p.logger.Debugf("played step %d/%d", step, p.traj.Len())
		}
	}
}
