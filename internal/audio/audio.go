// Package audio holds the signed-linear PCM helpers shared by the speech
// engines: WAV framing, down-mixing and sample rate conversion.
//
// All PCM in saytext is 16-bit little-endian. The telephony host reads raw
// signed-linear files whose extension encodes the rate (sln = 8 kHz,
// sln16 = 16 kHz).
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned when data does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// Ext returns the signed-linear file extension the host expects for rate.
func Ext(rate int) string {
	if rate == 16000 {
		return "sln16"
	}
	return "sln"
}

// Samples decodes 16-bit little-endian PCM bytes. A trailing odd byte is dropped.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Bytes encodes samples as 16-bit little-endian PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToMono averages interleaved channels into a single channel.
func ToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// Resample converts mono samples from one rate to another by linear
// interpolation. Equal rates return the input unchanged.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// WAV is a decoded PCM WAV file.
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// DecodeWAV walks the RIFF chunks and returns the PCM payload and format.
// Only uncompressed 16-bit PCM is accepted.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w       WAV
		format  int
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		end := pos + size
		if end > len(data) {
			// Streamed WAVs may carry a placeholder data size.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-pos < 16 {
				return nil, fmt.Errorf("fmt chunk too small: %d bytes", end-pos)
			}
			format = int(binary.LittleEndian.Uint16(data[pos:]))
			w.Channels = int(binary.LittleEndian.Uint16(data[pos+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[pos+4:]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(data[pos+14:]))
			haveFmt = true
		case "data":
			w.Data = data[pos:end]
		}

		pos = end + size%2 // chunks are word aligned
	}

	if !haveFmt {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if format != 1 || w.BitsPerSample != 16 {
		return nil, fmt.Errorf("wav: unsupported encoding (format %d, %d bits)", format, w.BitsPerSample)
	}
	return &w, nil
}

// EncodeWAV wraps raw PCM data in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus 8 bytes for RIFF header = 36

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// Normalize converts 16-bit PCM with any channel count and rate into mono
// PCM at the target rate.
func Normalize(pcm []byte, channels, from, to int) []byte {
	s := ToMono(Samples(pcm), channels)
	return Bytes(Resample(s, from, to))
}
