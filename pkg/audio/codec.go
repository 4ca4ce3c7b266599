package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PlaybackSampleRate is the sample rate of model output audio.
	PlaybackSampleRate = 24000

	// CaptureSampleRate is the sample rate of microphone capture audio.
	CaptureSampleRate = 16000
)

// ErrMalformedEncoding indicates a chunk that cannot be decoded: invalid
// base64 text or a byte buffer whose length is not a whole number of
// 16-bit samples. Callers should drop the chunk and continue; a
// malformed chunk never aborts the stream.
var ErrMalformedEncoding = errors.New("malformed audio encoding")

// FloatToPCM16 converts float samples in [-1, 1] to 16-bit signed PCM.
// Samples outside the range are clamped first. Negative values scale by
// 32768 and non-negative values by 32767 so the result always fits in an
// int16; the asymmetry makes the float round trip lossy by one
// quantization step at most, which is expected.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// PCM16ToFloat converts 16-bit signed PCM samples to floats in [-1, 1).
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// BytesToPCM16 reinterprets a little-endian byte buffer as 16-bit
// samples. An odd-length buffer is a malformed frame: the caller must
// skip the chunk rather than truncate or pad it.
func BytesToPCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrMalformedEncoding, len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// PCM16ToBytes serializes 16-bit samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// EncodeBase64 encodes a byte buffer as standard base64 text.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes standard base64 text back to bytes. Invalid
// input returns an error wrapping ErrMalformedEncoding.
func DecodeBase64(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return data, nil
}
