package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"parking-service/internal/config"
	"parking-service/internal/core"
	"parking-service/internal/parking"
	"parking-service/internal/sim"
	"parking-service/internal/types"
)

func NewSimulateCommand() *cobra.Command {
	var (
		timeout  time.Duration
		realtime bool
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Park in a simulated lot",
		GroupID: gService,
		Long: `Run one parking attempt against a simulated vehicle and two parked cars.

The parking section of the config file is used when the file exists. The
simulation runs faster than real time unless --realtime is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLogger(os.Stderr)
			if err != nil {
				return err
			}

			var provider parking.ConfigProvider = config.NewFileFromConfig(nil, "")
			if f, err := config.NewFile(configPath); err == nil {
				provider = &parking.StaticConfig{Config: f.ParkingConfig()}
			} else {
				l.Warnf("Using default parking config: %v", err)
			}

			world := sim.DefaultScene()
			machine, err := parking.NewPhaseMachine(world, provider,
				parking.WithClock(world),
				parking.WithLogger(l),
			)
			if err != nil {
				return err
			}
			defer machine.Close()

			system := core.NewParkingSystem(machine, world, core.Options{}, l)
			if err := system.HandleCommand(core.CommandStart); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lastPhase := ""
			status, runErr := sim.Run(ctx, world, system, sim.RunOptions{
				TickInterval: core.DefaultTickInterval,
				Timeout:      timeout,
				Realtime:     realtime,
				OnTick: func(status types.Status, pose sim.Pose) {
					if status.Phase != lastPhase || verbose {
						cmd.Printf("%7s  %-28s %-40s (%.0f, %.0f) %+.0f°\n",
							world.Elapsed().Truncate(time.Millisecond), phaseText(status), status.Message,
							pose.X, pose.Y, pose.Heading)
						lastPhase = status.Phase
					}
				},
			})

			cmd.Println()
			printSensorTable(cmd, status)
			pose := world.Pose()
			cmd.Printf("Final pose: (%.0f, %.0f) heading %+.0f°, in bay: %s\n",
				pose.X, pose.Y, pose.Heading, bool2Text(sim.Bay.Contains(pose.X, pose.Y)))

			if runErr != nil {
				return errors.Wrap(runErr, "simulation")
			}
			if !status.Completed {
				return errors.Errorf("parking did not complete: %s", status.Message)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "simulated time budget")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace the simulation in real time")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every tick, not only phase changes")

	return cmd
}
