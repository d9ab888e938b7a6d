package audio

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// wavHeader is the canonical 44-byte RIFF header for mono PCM16.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteWAV writes mono PCM16 data as a WAV file.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "write wav header")
	}
	if _, err := w.Write(pcm); err != nil {
		return errors.Wrap(err, "write wav data")
	}
	return nil
}
