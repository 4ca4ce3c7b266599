package voice

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/kingwiss/Chronos/pkg/audio"
)

// DefaultCaptureFrameSize is the miniaudio period size in frames; at
// 16 kHz this is 64 ms of audio per transmitted chunk.
const DefaultCaptureFrameSize = 1024

// MalgoInput captures 16 kHz mono microphone audio through miniaudio.
// It satisfies audio.InputDevice. The device is acquired on Start and
// released on Stop; a failed acquisition maps to ErrPermissionDenied
// because the platform reports a declined microphone prompt as a device
// initialization failure.
type MalgoInput struct {
	frameSize uint32
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
}

// NewMalgoInput creates a capture device with the given period size in
// frames. Zero selects DefaultCaptureFrameSize.
func NewMalgoInput(frameSize int) *MalgoInput {
	if frameSize <= 0 {
		frameSize = DefaultCaptureFrameSize
	}
	return &MalgoInput{frameSize: uint32(frameSize)}
}

// Start acquires the microphone and begins delivering PCM-16 frames to
// onFrame from the capture callback. onFrame must not block.
func (m *MalgoInput) Start(onFrame func(pcm []byte)) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = audio.CaptureSampleRate
	cfg.PeriodSizeInFrames = m.frameSize

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := bytesToFloat32(input)
			if len(samples) == 0 {
				return
			}
			onFrame(audio.PCM16ToBytes(audio.FloatToPCM16(samples)))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	m.ctx = mctx
	m.device = device
	return nil
}

// Stop releases the microphone. Safe to call when not started.
func (m *MalgoInput) Stop() error {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}

// bytesToFloat32 reinterprets a little-endian f32 capture buffer.
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
