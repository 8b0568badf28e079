package audio

import (
	"encoding/binary"
	"io"
	"os"
)

const wavHeaderSize = 44

// WAVHeaderPCM16LE builds a canonical 44-byte WAV header for mono PCM16LE
// audio of the given payload size.
func WAVHeaderPCM16LE(dataSize uint32, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], audioFormat)
	binary.LittleEndian.PutUint16(h[22:24], numChannels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}

// WriteWAVPCM16LE writes raw PCM16LE mono audio to out as a WAV stream.
func WriteWAVPCM16LE(out io.Writer, pcm []byte, sampleRate int) error {
	if _, err := out.Write(WAVHeaderPCM16LE(uint32(len(pcm)), sampleRate)); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono audio bytes as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVPCM16LE(f, pcm, sampleRate)
}
