package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"parking-service/internal/core"
	"parking-service/internal/hardware"
	"parking-service/internal/messaging"
	"parking-service/internal/parking"
)

// viaRedis makes control commands push onto the Redis lists instead of
// calling the HTTP API, for when the API is not reachable.
var viaRedis bool

// commandQueue is the producer side of the Redis command lists.
type commandQueue interface {
	SendCommand(list, payload string) error
}

func queueCommand(q commandQueue, command string) error {
	return q.SendCommand(messaging.CommandList, command)
}

func queueConfig(q commandQueue, patch parking.ParkingConfigPatch) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config patch")
	}
	return q.SendCommand(messaging.ConfigList, string(b))
}

// withRedisQueue connects to the Redis server from the config file or
// --redis and hands the client to fn.
func withRedisQueue(fn func(q commandQueue) error) error {
	l, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	_, _, redisConf, err := loadConfig()
	if err != nil {
		return err
	}
	r := messaging.NewRedisClient(redisConf.Host, redisConf.Port, l, messaging.Callbacks{})
	defer r.Close()
	if err := r.Connect(); err != nil {
		return err
	}
	return fn(r)
}

// NewControlCommands builds start, stop, reset and estop.
func NewControlCommands() []*cobra.Command {
	commands := []struct {
		use, command, short string
	}{
		{"start", core.CommandStart, "Start a parking attempt"},
		{"stop", core.CommandStop, "Stop the vehicle and end the attempt"},
		{"reset", core.CommandReset, "Return the maneuver to its first phase"},
		{"estop", core.CommandEmergencyStop, "Emergency stop"},
	}

	out := make([]*cobra.Command, 0, len(commands))
	for _, c := range commands {
		command := c.command
		sub := &cobra.Command{
			Use:     c.use,
			Short:   c.short,
			GroupID: gControl,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if viaRedis {
					if err := withRedisQueue(func(q commandQueue) error { return queueCommand(q, command) }); err != nil {
						return err
					}
					logrus.Infof("queued %s on %s", command, messaging.CommandList)
					return nil
				}
				status, err := newAPIClient().Command(command)
				if err != nil {
					return err
				}
				logrus.Infof("%s: %s", status.Phase, status.Message)
				return nil
			},
		}
		sub.Flags().BoolVar(&viaRedis, "via-redis", false, "push the command onto the Redis command list")
		out = append(out, sub)
	}
	return out
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change the parking config of the running service",
		GroupID: gControl,
	}

	setCmd := &cobra.Command{
		Use:   "set key=value...",
		Short: "Update parking config values",
		Long: `Update parking config values, e.g.

  parking-service config set stop_distance=35 alignment_tolerance=0

The update is validated as a whole; if any value is rejected nothing changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			patch, err := parsePatchArgs(args)
			if err != nil {
				return err
			}
			if viaRedis {
				if err := withRedisQueue(func(q commandQueue) error { return queueConfig(q, patch) }); err != nil {
					return err
				}
				logrus.Infof("queued parking config update on %s", messaging.ConfigList)
				return nil
			}
			if _, err := newAPIClient().SetConfig(patch); err != nil {
				return err
			}
			logrus.Infof("parking config updated")
			return nil
		},
	}
	setCmd.Flags().BoolVar(&viaRedis, "via-redis", false, "push the update onto the Redis config list")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the active parking config as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := newAPIClient().GetConfig()
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			},
		},
		setCmd,
	)

	return cmd
}

// parsePatchArgs turns key=value pairs into a patch using the JSON keys.
func parsePatchArgs(args []string) (parking.ParkingConfigPatch, error) {
	values := make(map[string]float64, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return parking.ParkingConfigPatch{}, errors.Errorf("expected key=value, got %q", arg)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return parking.ParkingConfigPatch{}, errors.Errorf("%s: %q is not a number", key, raw)
		}
		values[strings.TrimSpace(key)] = v
	}
	b, err := json.Marshal(values)
	if err != nil {
		return parking.ParkingConfigPatch{}, err
	}
	return parking.ParsePatch(b)
}

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ports",
		Short:   "List serial ports for the servo bus and sensor bridge",
		GroupID: gService,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := hardware.SerialPorts()
			if err != nil {
				return errors.Wrap(err, "failed to list serial ports")
			}
			if len(ports) == 0 {
				cmd.Println(dimStyle.Render("no serial ports found"))
				return nil
			}
			for _, p := range ports {
				cmd.Println(p)
			}
			return nil
		},
	}
}
