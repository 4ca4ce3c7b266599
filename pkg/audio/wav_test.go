package audio

import (
	"strings"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 5000}

	data, err := EncodeWAV(samples, CaptureSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	back, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != CaptureSampleRate {
		t.Errorf("Expected sample rate %d, got %d", CaptureSampleRate, rate)
	}
	if len(back) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(back))
	}
	for i, want := range samples {
		if back[i] != want {
			t.Errorf("Sample %d = %d, want %d", i, back[i], want)
		}
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, CaptureSampleRate); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid, err := EncodeWAV([]int16{1, 2, 3, 4}, CaptureSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{name: "too short", data: []byte{1, 2, 3}, wantErr: "too short"},
		{name: "bad magic", data: append([]byte("JUNK"), valid[4:]...), wantErr: "not a WAV"},
		{name: "truncated payload", data: valid[:46], wantErr: "truncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
