package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dgnsrekt/mediavoice/internal/tts"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// decode opens an mp3 or wav stream and resamples it to sampleRate.
func decode(r io.ReadCloser, fileType string, sampleRate int) (beep.StreamCloser, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch strings.ToLower(fileType) {
	case "mp3":
		s, format, err = mp3.Decode(r)
	case "wav":
		s, format, err = wav.Decode(r)
	default:
		_ = r.Close()
		return nil, tts.NewTTSError(tts.ErrorCodeAudioFormat,
			fmt.Sprintf("cannot decode %q audio", fileType), tts.ErrUnsupportedFormat)
	}
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", fileType, err)
	}

	target := beep.SampleRate(sampleRate)
	if format.SampleRate == target {
		return s, nil
	}
	return &resampled{
		Resampler: beep.Resample(4, format.SampleRate, target, s),
		closer:    s,
	}, nil
}

type resampled struct {
	*beep.Resampler
	closer io.Closer
}

func (r *resampled) Close() error {
	return r.closer.Close()
}

// pcmReader renders a beep stream as signed 16-bit little endian PCM for
// oto.
type pcmReader struct {
	s        beep.Streamer
	channels int
	buf      [][2]float64
	pending  []byte
	done     bool
}

func newPCMReader(s beep.Streamer, channels int) *pcmReader {
	return &pcmReader{
		s:        s,
		channels: channels,
		buf:      make([][2]float64, 512),
	}
}

func (r *pcmReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.done {
			return 0, io.EOF
		}
		n, ok := r.s.Stream(r.buf)
		if !ok {
			r.done = true
			if err := r.s.Err(); err != nil {
				return 0, err
			}
		}
		r.pending = r.encode(r.buf[:n])
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *pcmReader) encode(samples [][2]float64) []byte {
	out := make([]byte, 0, len(samples)*2*r.channels)
	for _, s := range samples {
		if r.channels == 1 {
			out = binary.LittleEndian.AppendUint16(out, uint16(toInt16((s[0]+s[1])/2)))
			continue
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(toInt16(s[0])))
		out = binary.LittleEndian.AppendUint16(out, uint16(toInt16(s[1])))
	}
	return out
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(v * math.MaxInt16)
}
