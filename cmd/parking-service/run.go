package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"parking-service/internal/api"
	"parking-service/internal/core"
	"parking-service/internal/fsm"
	"parking-service/internal/hardware"
	"parking-service/internal/messaging"
	"parking-service/internal/parking"
)

func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		Short:   "Run the parking service on the vehicle",
		GroupID: gService,
		Long: `Run the parking service.

Opens the ultrasonic rangers, drive motors and steering servo described in
the config file, then waits for commands over Redis, MQTT or HTTP.

SIGHUP reloads the config file and applies its parking section.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runService()
		},
	}
}

func runService() error {
	l, err := newLogger(os.Stdout)
	if err != nil {
		return err
	}
	l.Infof("Starting parking service...")

	conf, listen, redisConf, err := loadConfig()
	if err != nil {
		return err
	}
	l.Entry().WithFields(conf.LogrusFields()).Info("config loaded")

	hw := conf.Hardware()
	actuator, err := hardware.OpenActuator(hw, l)
	if err != nil {
		return errors.Wrap(err, "failed to open actuator")
	}
	defer actuator.Close()

	var redis *messaging.RedisClient
	if !redisConf.Disabled {
		redis = messaging.NewRedisClient(redisConf.Host, redisConf.Port, l, messaging.Callbacks{})
	}

	var sensors core.RangeSensorArray
	if hw.Sensors == "redis" {
		if redis == nil {
			return errors.New("sensors: redis needs redis to be enabled")
		}
		sensors = redis
	} else {
		source, err := hardware.OpenRangeSource(hw, l)
		if err != nil {
			return errors.Wrap(err, "failed to open range sensors")
		}
		defer source.Close()
		sensors = source
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// phase changes are logged by the machine once its lock is released
	tracker, err := fsm.NewMachineTracker(ctx, nil, nil)
	if err != nil {
		return err
	}

	machine, err := parking.NewPhaseMachine(actuator, conf,
		parking.WithTracker(tracker),
		parking.WithLogger(l),
	)
	if err != nil {
		tracker.Close()
		return err
	}

	opts := core.Options{
		TickInterval:   conf.TickInterval(),
		StatusInterval: conf.StatusInterval(),
	}
	if redis != nil {
		opts.Messaging = redis
	}

	var emitter *messaging.MQTTEmitter
	if m := conf.MQTT(); m.Broker != "" {
		emitter = messaging.NewMQTTEmitter(messaging.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Prefix:   m.Prefix,
			QoS:      1,
		}, l)
		opts.Publishers = append(opts.Publishers, emitter)
	}

	system := core.NewParkingSystem(machine, sensors, opts, l)
	if err := system.Start(ctx); err != nil {
		system.Shutdown()
		return err
	}
	defer system.Shutdown()

	if emitter != nil {
		if err := emitter.Connect(); err != nil {
			l.Warnf("MQTT unavailable, continuing without it: %v", err)
		} else if err := emitter.SubscribeCommands(system.HandleCommand); err != nil {
			l.Warnf("MQTT command subscription failed: %v", err)
		}
		defer emitter.Close()
	}

	server := api.NewServer(system, listen, l)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		if err := server.Shutdown(); err != nil {
			l.Errorf("Failed to shut down HTTP server: %v", err)
		}
	}()

	l.Infof("Parking service ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			l.Infof("Received signal %v, shutting down...", sig)
			break
		}
		l.Infof("Received SIGHUP, reloading %s", configPath)
		if err := conf.Load(); err != nil {
			l.Errorf("Failed to reload config: %v", err)
			continue
		}
		if err := system.UpdateParkingConfig(conf.ParkingConfig().AsPatch()); err != nil {
			l.Errorf("Failed to apply reloaded parking config: %v", err)
		}
	}

	return nil
}
