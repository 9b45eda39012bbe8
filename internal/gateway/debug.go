package gateway

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/pkg/audio"
)

// wavHeader is the 44-byte RIFF header of a mono PCM WAV file.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// wavRecorder streams a session's 16 kHz PCM16 frames into a WAV file
// for debugging. Chunk sizes are patched into the header on Close.
type wavRecorder struct {
	logger    *zap.Logger
	file      *os.File
	path      string
	dataBytes uint32
}

func newWAVRecorder(dir, sessionID string, logger *zap.Logger) (*wavRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("debug dir: %w", err)
	}

	path := filepath.Join(
		dir,
		fmt.Sprintf("intake_%s_%s.wav", sessionID, time.Now().Format("20060102_150405")),
	)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}

	r := &wavRecorder{
		logger: logger,
		file:   file,
		path:   path,
	}

	// Placeholder header, rewritten with real sizes on Close.
	if err := r.writeHeader(); err != nil {
		file.Close()

		return nil, fmt.Errorf("wav header: %w", err)
	}

	return r, nil
}

func (r *wavRecorder) writeHeader() error {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + r.dataBytes,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(audio.TargetSampleRate),
		ByteRate:      uint32(audio.TargetSampleRate) * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: r.dataBytes,
	}

	return binary.Write(r.file, binary.LittleEndian, header)
}

// WriteFrame appends one little-endian PCM16 frame to the file.
func (r *wavRecorder) WriteFrame(frame []byte) error {
	n, err := r.file.Write(frame)
	r.dataBytes += uint32(n)

	return err
}

// Close patches the chunk sizes and closes the file.
func (r *wavRecorder) Close() error {
	if r.file == nil {
		return nil
	}

	if _, err := r.file.Seek(0, 0); err != nil {
		r.file.Close()

		return err
	}
	if err := r.writeHeader(); err != nil {
		r.file.Close()

		return err
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	samples := int(r.dataBytes) / 2
	r.logger.Info("saved debug WAV",
		zap.String("file", r.path),
		zap.Int("samples", samples),
		zap.Int("rate_hz", audio.TargetSampleRate),
		zap.Float64("duration_sec",
			float64(samples)/float64(audio.TargetSampleRate)))

	return nil
}
