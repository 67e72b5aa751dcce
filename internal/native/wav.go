// ABOUTME: WAV container parsing for the pass-through native output
// ABOUTME: Walks RIFF chunks and validates 16-bit PCM without decoding
package native

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/harperreed/castbridge/internal/engine"
)

// wavFormat describes the PCM payload of a WAV file. Offsets address the
// raw sample bytes so playback can hand the file to the output untouched.
type wavFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataOffset    int64
	DataLen       int64
}

func (f wavFormat) frameBytes() int64 {
	return int64(f.Channels * f.BitsPerSample / 8)
}

func (f wavFormat) byteRate() int64 {
	return int64(f.SampleRate) * f.frameBytes()
}

func (f wavFormat) duration() time.Duration {
	rate := f.byteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(f.DataLen) * time.Second / time.Duration(rate)
}

func (f wavFormat) bytesToDuration(n int64) time.Duration {
	rate := f.byteRate()
	if rate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// alignedOffset converts a playback position to a frame-aligned byte offset
// into the data chunk, clamped to the payload.
func (f wavFormat) alignedOffset(pos time.Duration) int64 {
	rate := f.byteRate()
	if rate <= 0 || pos <= 0 {
		return 0
	}
	b := pos.Nanoseconds() * rate / int64(time.Second)
	if fb := f.frameBytes(); fb > 0 {
		b -= b % fb
	}
	if b > f.DataLen {
		b = f.DataLen
	}
	return b
}

// parseWAV walks the RIFF chunk list and returns the format of the PCM
// payload. Anything that is not uncompressed 16-bit PCM is rejected with
// an error wrapping engine.ErrUnsupportedFormat.
func parseWAV(r io.ReadSeeker, size int64) (wavFormat, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return wavFormat{}, fmt.Errorf("%w: not a RIFF file", engine.ErrUnsupportedFormat)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, fmt.Errorf("%w: not a RIFF/WAVE file", engine.ErrUnsupportedFormat)
	}

	var f wavFormat
	var haveFmt, haveData bool
	offset := int64(12)
	for offset+8 <= size {
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return wavFormat{}, fmt.Errorf("seek chunk header: %w", err)
		}
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			break
		}
		id := string(chunk[0:4])
		length := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if length < 16 {
				return wavFormat{}, fmt.Errorf("%w: malformed fmt chunk", engine.ErrUnsupportedFormat)
			}
			var fields [16]byte
			if _, err := io.ReadFull(r, fields[:]); err != nil {
				return wavFormat{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			formatTag := binary.LittleEndian.Uint16(fields[0:2])
			if formatTag != 1 {
				return wavFormat{}, fmt.Errorf("%w: compressed or non-PCM audio (format tag %d)", engine.ErrUnsupportedFormat, formatTag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(fields[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(fields[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(fields[14:16]))
			haveFmt = true
		case "data":
			f.DataOffset = body
			f.DataLen = length
			haveData = true
		}

		offset = body + length
		// Chunks are word aligned.
		if length%2 == 1 {
			offset++
		}
	}

	if !haveFmt || !haveData {
		return wavFormat{}, fmt.Errorf("%w: missing fmt or data chunk", engine.ErrUnsupportedFormat)
	}
	if f.BitsPerSample != 16 {
		return wavFormat{}, fmt.Errorf("%w: %d-bit samples, only 16-bit PCM is played back", engine.ErrUnsupportedFormat, f.BitsPerSample)
	}
	if f.Channels < 1 || f.SampleRate <= 0 {
		return wavFormat{}, fmt.Errorf("%w: invalid channel count or sample rate", engine.ErrUnsupportedFormat)
	}

	// Tolerate truncated files and over-declared data sizes.
	if f.DataOffset+f.DataLen > size {
		f.DataLen = size - f.DataOffset
	}
	if f.DataLen < 0 {
		f.DataLen = 0
	}
	f.DataLen -= f.DataLen % f.frameBytes()
	return f, nil
}
