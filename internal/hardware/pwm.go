package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PwmChannel drives one sysfs PWM output.
type PwmChannel struct {
	dir    string
	period int
	lock   sync.Mutex
	duty   int
}

// OpenPwmChannel exports channel on pwmchipN below root (if needed), sets
// the period and enables the output at 0% duty.
func OpenPwmChannel(root string, chip, channel, periodNs int) (*PwmChannel, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeSysfs(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, errors.Wrapf(err, "export pwm%d on pwmchip%d", channel, chip)
		}
		// udev needs a moment to fix up permissions on the new node
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(dir); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	p := &PwmChannel{dir: dir, period: periodNs}
	if err := writeSysfs(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "period"), strconv.Itoa(periodNs)); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDutyPercent sets the duty cycle, clamped to 0..100 percent.
func (p *PwmChannel) SetDutyPercent(pct float64) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	duty := int(float64(p.period) * pct / 100)

	p.lock.Lock()
	defer p.lock.Unlock()
	if duty == p.duty {
		return nil
	}
	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), strconv.Itoa(duty)); err != nil {
		return err
	}
	p.duty = duty
	return nil
}

func (p *PwmChannel) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), "0"); err != nil {
		return err
	}
	return writeSysfs(filepath.Join(p.dir, "enable"), "0")
}

func writeSysfs(path, value string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_TRUNC, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, []byte(value)); err != nil {
		return errors.Wrapf(err, "failed to write %q to %s", value, path)
	}
	return nil
}
