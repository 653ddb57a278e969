package main

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"parking-service/internal/client"
	"parking-service/internal/config"
)

// loadConfig reads the config file and applies the --listen and --redis
// overrides.
func loadConfig() (*config.File, string, config.RedisConfig, error) {
	f, err := config.NewFile(configPath)
	if err != nil {
		return nil, "", config.RedisConfig{}, err
	}

	listen := f.Listen()
	if listenAddr != "" {
		listen = listenAddr
	}

	redis := f.Redis()
	if redisAddr != "" {
		host, port, err := splitHostPort(redisAddr)
		if err != nil {
			return nil, "", redis, err
		}
		redis.Host, redis.Port = host, port
		redis.Disabled = false
	}
	return f, listen, redis, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid address %q", addr)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.Errorf("invalid port in %q", addr)
	}
	return host, port, nil
}

// serviceAddr is where the client subcommands find the running service.
func serviceAddr() string {
	if listenAddr != "" {
		return listenAddr
	}
	f, err := config.NewFile(configPath)
	if err != nil {
		logrus.WithError(err).Debug("using default listen address")
		return config.NewFileFromConfig(nil, "").Listen()
	}
	return f.Listen()
}

func newAPIClient() *client.Client {
	return client.NewClient(serviceAddr())
}
