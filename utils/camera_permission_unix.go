//go:build unix && !darwin

package utils

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// PermissionGranted reports whether this process may open the video device.
// A missing device is an error, not a denial.
func (c *CameraCapture) PermissionGranted() (bool, error) {
	err := unix.Access(c.DevicePath(), unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return false, nil
	default:
		return false, fmt.Errorf("camera device %s: %w", c.DevicePath(), err)
	}
}
