package utils

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

type CameraCapture struct {
	DeviceID int
}

func NewCameraCapture(deviceID int) *CameraCapture {
	return &CameraCapture{
		DeviceID: deviceID,
	}
}

// DevicePath is the video device node on Linux.
func (c *CameraCapture) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.DeviceID)
}

// CaptureImage captures one frame from the camera as JPEG bytes.
func (c *CameraCapture) CaptureImage(ctx context.Context) ([]byte, error) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-f", "avfoundation",
			"-video_size", "1280x960",
			"-framerate", "30",
			"-i", fmt.Sprintf("%d", c.DeviceID),
			"-vframes", "1",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-")
	case "linux":
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-f", "v4l2",
			"-video_size", "1280x960",
			"-i", c.DevicePath(),
			"-vframes", "1",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-")
	case "windows":
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-f", "dshow",
			"-video_size", "1280x960",
			"-i", "video=USB Camera",
			"-vframes", "1",
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "2",
			"-")
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	output, err := cmd.Output()
	if err != nil {
		zap.L().Error("Failed to capture image from camera", zap.Error(err))
		return nil, fmt.Errorf("failed to capture image: %w", err)
	}

	if len(output) == 0 {
		return nil, errors.New("no image data captured")
	}

	zap.L().Debug("Successfully captured image", zap.Int("size", len(output)))
	return output, nil
}

func (c *CameraCapture) captureImageMacOS(ctx context.Context) ([]byte, error) {
	if runtime.GOOS != "darwin" {
		return nil, errors.New("imagesnap is only available on macOS")
	}

	cmd := exec.CommandContext(ctx, "imagesnap", "-d", fmt.Sprintf("%d", c.DeviceID), "-f", "jpeg", "-")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to capture image with imagesnap: %w", err)
	}

	if len(output) == 0 {
		return nil, errors.New("no image data captured")
	}
	return output, nil
}

// TryCapture uses ffmpeg and falls back to imagesnap on macOS.
func (c *CameraCapture) TryCapture(ctx context.Context) ([]byte, error) {
	data, err := c.CaptureImage(ctx)
	if err == nil {
		return data, nil
	}

	if runtime.GOOS == "darwin" {
		zap.L().Warn("Primary capture method failed, trying imagesnap", zap.Error(err))
		data, altErr := c.captureImageMacOS(ctx)
		if altErr == nil {
			return data, nil
		}
		return nil, errors.Join(err, altErr)
	}

	return nil, err
}
