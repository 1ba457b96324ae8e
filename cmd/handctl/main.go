// Package main is handctl, a standalone driver for a Dynamixel hand: live
// control from a MIDI surface, or step-by-step trajectory replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clintpurser/dxlhand/config"
	"github.com/clintpurser/dxlhand/control"
	"github.com/clintpurser/dxlhand/controlsurface"
	"github.com/clintpurser/dxlhand/dynamixel"
	"github.com/clintpurser/dxlhand/fake"
	"github.com/clintpurser/dxlhand/trajectory"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("handctl"))
}

type options struct {
	configPath string
	port       string
	baud       int
	preset     string
	midiInput  string
	every      time.Duration
	dryRun     bool
	logFile    string
	debug      bool
	command    string
}

func parseArgs(args []string, out io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("handctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.configPath, "config", "", "hand config file (YAML)")
	fs.StringVar(&opts.port, "port", "", "serial port of the servo bus")
	fs.IntVar(&opts.baud, "baud", 0, "baud rate (default from config, else 57600)")
	fs.StringVar(&opts.preset, "preset", "", "built-in hand: "+strings.Join(config.PresetNames(), ", "))
	fs.StringVar(&opts.midiInput, "midi", "", "MIDI input name to match (default first input)")
	fs.DurationVar(&opts.every, "every", 0, "replay: advance on this period instead of Enter")
	fs.BoolVar(&opts.dryRun, "fake", false, "drive an in-memory bus instead of the serial port")
	fs.StringVar(&opts.logFile, "log-file", "", "also write logs to this rotated file")
	fs.BoolVar(&opts.debug, "debug", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(out, "usage: handctl [flags] midi|replay|reboot")
		fs.PrintDefaults()
	}

	if len(args) > 0 {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.command = fs.Arg(0)
	if opts.command == "" {
		opts.command = "midi"
	}
	switch opts.command {
	case "midi", "replay", "reboot":
	default:
		fs.Usage()
		return nil, errors.Errorf("unknown command %q", opts.command)
	}
	return opts, nil
}

// loadHand merges the config file with command line overrides.
func loadHand(opts *options) (config.Hand, error) {
	hand := config.Hand{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return hand, err
		}
		hand = *loaded
	}
	if opts.port != "" {
		hand.Port = opts.port
	}
	if opts.baud != 0 {
		hand.BaudRate = opts.baud
	}
	if opts.preset != "" {
		hand.Preset = opts.preset
		hand.Channels = nil
		hand.Bindings = nil
	}
	if opts.midiInput != "" {
		hand.MIDIInput = opts.midiInput
	}

	hand, err := hand.WithDefaults()
	if err != nil {
		return hand, err
	}
	return hand, hand.Validate(!opts.dryRun)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.debug {
		logger.SetLevel(logging.DEBUG)
	}
	if opts.logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		defer rotator.Close()
		logger.AddAppender(logging.NewWriterAppender(rotator))
	}

	hand, err := loadHand(opts)
	if err != nil {
		return err
	}
	cal, err := hand.CalibrationMap()
	if err != nil {
		return err
	}
	bindings, err := hand.ControlBindings(cal)
	if err != nil {
		return err
	}

	var bus control.Bus
	if opts.dryRun {
		bus = fake.NewBus(logger)
		logger.Info("dry run: no serial port opened")
	} else {
		profile, err := hand.ServoProfile()
		if err != nil {
			return err
		}
		driver, err := dynamixel.NewDriver(hand.Port, hand.BaudRate, profile, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := driver.Close(); err != nil {
				logger.Warnf("failed to close %s: %v", hand.Port, err)
			}
		}()
		if opts.command == "reboot" {
			return rebootAll(driver, cal.IDs(), logger)
		}
		bus = driver
	}
	if opts.command == "reboot" {
		return nil
	}

	ctrl := control.NewController(cal, bindings, bus, logger)
	// Torque comes off however the run ends.
	defer func() {
		if err := ctrl.Shutdown(); err != nil {
			logger.Errorf("shutdown incomplete: %v", err)
		}
	}()
	if err := ctrl.Start(); err != nil {
		logger.Warnf("some channels did not enable torque: %v", err)
	}
	if err := ctrl.Resend(); err != nil {
		logger.Warnf("failed to write rest positions: %v", err)
	}

	switch opts.command {
	case "replay":
		return replay(ctx, hand, ctrl, opts.every, logger)
	default:
		return live(ctx, hand, ctrl, logger)
	}
}

func live(ctx context.Context, hand config.Hand, ctrl *control.Controller, logger logging.Logger) error {
	surface, err := controlsurface.Open(hand.MIDIInput, logger)
	if err != nil {
		return err
	}
	defer func() {
		if dropped := surface.Dropped(); dropped > 0 {
			logger.Warnf("%d control events dropped", dropped)
		}
		if err := surface.Close(); err != nil {
			logger.Warnf("failed to close MIDI input: %v", err)
		}
	}()
	return ctrl.Run(ctx, surface, hand.TickPeriod())
}

func replay(ctx context.Context, hand config.Hand, ctrl *control.Controller, every time.Duration, logger logging.Logger) error {
	traj, err := hand.LoadTrajectory(ctrl.Calibration())
	if err != nil {
		return err
	}
	player, err := trajectory.NewPlayer(traj, ctrl.Calibration(), logger,
		trajectory.WithClamp(hand.ClampTrajectory), trajectory.WithLoop(hand.LoopTrajectory))
	if err != nil {
		return err
	}

	var adv trajectory.Advancer = trajectory.Every(every)
	if every <= 0 {
		lines := trajectory.NewLineAdvancer(os.Stdin, os.Stdout)
		defer lines.Close()
		adv = lines
	}
	logger.Infof("replaying %d steps on channels %v", player.Len(), traj.ChannelIDs())
	return player.Run(ctx, ctrl, adv)
}

func rebootAll(driver *dynamixel.Driver, ids []int, logger logging.Logger) error {
	var failed int
	for _, id := range ids {
		if err := driver.Reboot(id); err != nil {
			logger.Warnf("%v", err)
			failed++
			continue
		}
		logger.Infof("rebooted motor %d", id)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d motors failed to reboot", failed, len(ids))
	}
	return nil
}
