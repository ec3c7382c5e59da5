//go:build !unix || darwin

package utils

// PermissionGranted always reports true; the OS prompts on first capture.
func (c *CameraCapture) PermissionGranted() (bool, error) {
	return true, nil
}
