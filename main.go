// Package main is a module with the infineon tle94112 motor controller.
package main

import (
	"context"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	"github.com/viam-modules/infineon/tle94112"
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("infineon"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	module, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	if err = module.AddModelFromRegistry(ctx, generic.API, tle94112.Model); err != nil {
		return err
	}

	if err = module.AddModelFromRegistry(ctx, motor.API, tle94112.MotorModel); err != nil {
		return err
	}

	err = module.Start(ctx)
	defer module.Close(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
