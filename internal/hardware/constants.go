package hardware

import "time"

const (
	Consumer = "parking-service"

	PwmSysfsRoot  = "/sys/class/pwm"
	PwmPeriodNs   = 50000 // 20 kHz motor PWM
	ServoBaudRate = 1_000_000
	SerialBaud    = 115200

	// HC-SR04: 10 us trigger pulse, echo width of 58 us per cm, nothing
	// beyond 400 cm
	triggerPulse   = 10 * time.Microsecond
	echoTimeout    = 30 * time.Millisecond
	usPerCm        = 58.0
	maxRangeCm     = 400.0
	settleInterval = 5 * time.Millisecond
)

type Pin struct {
	Chip int `yaml:"chip"`
	Line int `yaml:"line"`
}

type RangerPins struct {
	Trigger Pin `yaml:"trigger"`
	Echo    Pin `yaml:"echo"`
}

type WheelPins struct {
	Direction  Pin `yaml:"direction"`
	PwmChip    int `yaml:"pwm_chip"`
	PwmChannel int `yaml:"pwm_channel"`
}

// Config maps the vehicle's actuators and rangers onto chips, lines, PWM
// channels and serial ports.
type Config struct {
	// Sensors selects the range source: "gpio", "serial" or "redis".
	Sensors    string                `yaml:"sensors"`
	Ultrasonic map[string]RangerPins `yaml:"ultrasonic"`
	SerialPort string                `yaml:"serial_port"`

	LeftWheel  WheelPins `yaml:"left_wheel"`
	RightWheel WheelPins `yaml:"right_wheel"`

	ServoPort string `yaml:"servo_port"`
	ServoID   int    `yaml:"servo_id"`
	// ServoCenter is the raw position with the wheels straight.
	ServoCenter         int     `yaml:"servo_center"`
	ServoStepsPerDegree float64 `yaml:"servo_steps_per_degree"`
	ServoMaxAngle       float64 `yaml:"servo_max_angle"`
}

func DefaultConfig() Config {
	return Config{
		Sensors: "gpio",
		Ultrasonic: map[string]RangerPins{
			"front_right":  {Trigger: Pin{0, 17}, Echo: Pin{0, 27}},
			"middle_left":  {Trigger: Pin{0, 22}, Echo: Pin{0, 23}},
			"middle_right": {Trigger: Pin{0, 24}, Echo: Pin{0, 25}},
			"rear_left":    {Trigger: Pin{0, 5}, Echo: Pin{0, 6}},
			"rear_right":   {Trigger: Pin{0, 16}, Echo: Pin{0, 26}},
		},
		SerialPort:          "/dev/ttyACM0",
		LeftWheel:           WheelPins{Direction: Pin{0, 20}, PwmChip: 0, PwmChannel: 0},
		RightWheel:          WheelPins{Direction: Pin{0, 21}, PwmChip: 0, PwmChannel: 1},
		ServoPort:           "/dev/ttyUSB0",
		ServoID:             1,
		ServoCenter:         2048,
		ServoStepsPerDegree: 4096.0 / 360.0,
		ServoMaxAngle:       35,
	}
}
