package core

import (
	"fmt"

	"parking-service/internal/messaging"
	"parking-service/internal/parking"
)

// Commands accepted from Redis, MQTT and HTTP
const (
	CommandStart         = "start"
	CommandStop          = "stop"
	CommandReset         = "reset"
	CommandEmergencyStop = "emergency-stop"
)

// HandleCommand applies a parking command and publishes the resulting
// status right away.
func (s *ParkingSystem) HandleCommand(command string) error {
	s.logger.Infof("Handling command: %s", command)

	var err error
	switch command {
	case CommandStart:
		s.setFault(messaging.FaultStepAborted, false, "")
		s.setFault(messaging.FaultEmergencyStop, false, "")
		err = s.machine.Start()
	case CommandStop:
		err = s.machine.Stop()
	case CommandReset:
		err = s.machine.Reset()
	case CommandEmergencyStop:
		err = s.machine.EmergencyStop()
		s.setFault(messaging.FaultEmergencyStop, true, "emergency stop requested")
	default:
		return fmt.Errorf("invalid parking command: %s", command)
	}
	if err != nil {
		s.logger.Errorf("Command %s failed: %v", command, err)
		return err
	}

	s.PublishStatus()
	return nil
}

// HandleConfig applies a JSON encoded partial parking config.
func (s *ParkingSystem) HandleConfig(data []byte) error {
	patch, err := parking.ParsePatch(data)
	if err != nil {
		s.logger.Warnf("Rejected parking config: %v", err)
		return err
	}
	return s.UpdateParkingConfig(patch)
}

func (s *ParkingSystem) UpdateParkingConfig(patch parking.ParkingConfigPatch) error {
	if err := s.machine.UpdateParkingConfig(patch); err != nil {
		s.logger.Warnf("Rejected parking config: %v", err)
		return err
	}
	return nil
}
