package client

import (
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"parking-service/internal/parking"
	"parking-service/internal/types"
)

func (c *Client) GetStatus() (types.Status, error) {
	var status types.Status
	ret, err := c.Get("/status")
	if err != nil {
		return status, pkgerrors.Wrapf(err, "failed to get status")
	}
	if err := json.Unmarshal([]byte(ret), &status); err != nil {
		return status, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return status, nil
}

func (c *Client) GetSensors() (map[types.SensorName]float64, error) {
	var sensors map[types.SensorName]float64
	ret, err := c.Get("/sensors")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get sensors")
	}
	if err := json.Unmarshal([]byte(ret), &sensors); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal sensors")
	}
	return sensors, nil
}

func (c *Client) GetConfig() (parking.ParkingConfig, error) {
	var cfg parking.ParkingConfig
	ret, err := c.Get("/config")
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to get config")
	}
	if err := json.Unmarshal([]byte(ret), &cfg); err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return cfg, nil
}

// SetConfig sends a partial update and returns the resulting config.
func (c *Client) SetConfig(patch parking.ParkingConfigPatch) (parking.ParkingConfig, error) {
	var cfg parking.ParkingConfig
	b, err := json.Marshal(patch)
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to marshal config patch")
	}
	ret, err := c.Put("/config", string(b))
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to set config")
	}
	if err := json.Unmarshal([]byte(ret), &cfg); err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return cfg, nil
}

// Command posts one of start, stop, reset or emergency-stop and returns the
// status right after it was applied.
func (c *Client) Command(name string) (types.Status, error) {
	var status types.Status
	ret, err := c.Post("/parking/"+name, "")
	if err != nil {
		return status, pkgerrors.Wrapf(err, "failed to send %s", name)
	}
	if err := json.Unmarshal([]byte(ret), &status); err != nil {
		return status, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return status, nil
}
