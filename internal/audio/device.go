package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/meetingbox/meetingbox/internal/domain"
)

// DeviceSource captures live PCM from an ALSA device through an arecord
// subprocess. Stream reads are stateful, so the subprocess pipe is read
// directly rather than going through pkg/executor, which buffers full output.
type DeviceSource struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	frameBytes int
}

// NewDeviceSource starts arecord on the named device, producing raw 16-bit
// little-endian mono PCM at the given sample rate.
func NewDeviceSource(ctx context.Context, device string, sampleRate, frameBytes int) (*DeviceSource, error) {
	cmd := exec.CommandContext(ctx, "arecord",
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(sampleRate),
		"-c", "1",
		"-t", "raw",
		"-q",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start arecord: %w", err)
	}

	return &DeviceSource{cmd: cmd, stdout: stdout, frameBytes: frameBytes}, nil
}

// ReadFrame blocks until one full frame has been captured. A broken pipe or
// short read means the device went away, which is distinct from silence:
// silence still produces frames of near-zero samples.
func (s *DeviceSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := make([]byte, s.frameBytes)
	if _, err := io.ReadFull(s.stdout, frame); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceLost, err)
	}
	return frame, nil
}

// Close terminates the capture subprocess.
func (s *DeviceSource) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}
