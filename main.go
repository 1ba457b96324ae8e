// Package main is the entry point for the Dynamixel hand Viam module.
package main

import (
	"context"

	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	// Import packages to register components
	dxlhand "github.com/clintpurser/dxlhand/gripper"
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("dxlhand"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	mod, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	// Register the hand as a gripper
	if err := mod.AddModelFromRegistry(ctx, gripper.API, dxlhand.Model); err != nil {
		return err
	}

	if err := mod.Start(ctx); err != nil {
		return err
	}
	defer mod.Close(ctx)

	<-ctx.Done()
	return nil
}
