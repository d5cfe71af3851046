// Package audio decodes call recordings into mono float64 PCM.
//
// WAV PCM16 files decode natively. Anything else (m4a, amr, unsupported
// containers) goes through an ffmpeg re-encode fallback before the session
// gives up with a decode error.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
)

// Audio is a decoded recording as mono PCM in [-1,1].
type Audio struct {
	PCM        []float64
	SampleRate int
	Duration   time.Duration
}

// DecoderConfig holds decoder configuration.
type DecoderConfig struct {
	TargetSampleRate int
	FFmpegPath       string
	Timeout          time.Duration
}

// DefaultDecoderConfig returns the decoder defaults for call recordings.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		TargetSampleRate: 16000,
		FFmpegPath:       "ffmpeg",
		Timeout:          60 * time.Second,
	}
}

// Decoder decodes audio files into mono float64 PCM.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder creates a decoder with the given configuration.
func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = 16000
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Decoder{cfg: cfg}
}

// ErrUnsupportedFormat marks input the native WAV parser cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeFile decodes an audio file, trying the native WAV path first and
// the ffmpeg re-encode fallback second.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Audio, error) {
	logger := logging.WithComponent("audio_decoder")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	a, err := d.decodeWAV(data)
	if err == nil {
		logger.Debug().Str("path", path).Int("samples", len(a.PCM)).Msg("decoded natively")
		return a, nil
	}

	logger.Info().Str("path", path).Err(err).Msg("native decode failed, trying ffmpeg fallback")
	a, ferr := d.decodeWithFFmpeg(ctx, path)
	if ferr != nil {
		return nil, fmt.Errorf("ffmpeg fallback after %v: %w", err, ferr)
	}
	return a, nil
}

// decodeWAV parses a RIFF/WAVE container with 16-bit PCM samples,
// downmixing to mono.
func (d *Decoder) decodeWAV(data []byte) (*Audio, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrUnsupportedFormat
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcmBytes      []byte
	)

	// Walk the RIFF chunks; fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrUnsupportedFormat
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM only
				return nil, ErrUnsupportedFormat
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcmBytes = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}

	if sampleRate <= 0 || channels <= 0 || pcmBytes == nil {
		return nil, ErrUnsupportedFormat
	}
	if bitsPerSample != 16 {
		return nil, ErrUnsupportedFormat
	}

	pcm := pcm16ToFloat64(pcmBytes, channels)
	return &Audio{
		PCM:        pcm,
		SampleRate: sampleRate,
		Duration:   time.Duration(float64(len(pcm)) / float64(sampleRate) * float64(time.Second)),
	}, nil
}

// decodeWithFFmpeg re-encodes the file to raw mono f64le at the target
// sample rate via an external ffmpeg process.
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, path string) (*Audio, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	args := []string{
		"-i", path,
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.TargetSampleRate),
		"-v", "error",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.cfg.FFmpegPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	pcm := bytesToFloat64(output)
	if len(pcm) == 0 {
		return nil, errors.New("ffmpeg produced no samples")
	}
	return &Audio{
		PCM:        pcm,
		SampleRate: d.cfg.TargetSampleRate,
		Duration:   time.Duration(float64(len(pcm)) / float64(d.cfg.TargetSampleRate) * float64(time.Second)),
	}, nil
}

// pcm16ToFloat64 converts interleaved 16-bit samples to mono [-1,1].
func pcm16ToFloat64(data []byte, channels int) []float64 {
	frameBytes := 2 * channels
	n := len(data) / frameBytes
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			off := i*frameBytes + 2*c
			s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			sum += float64(s) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// bytesToFloat64 converts raw little-endian float64 bytes to samples.
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}
	if len(data) == 0 {
		return nil
	}
	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}
	return samples
}
