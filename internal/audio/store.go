package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrFinalized = errors.New("audio writer already finalized")

// Store manages per-session audio on disk: an append-only part file while a
// meeting records, finalized into an immutable WAV when the session ends.
type Store struct {
	dir        string
	sampleRate int
}

func NewStore(dir string, sampleRate int) (*Store, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Store{dir: dir, sampleRate: sampleRate}, nil
}

// Open returns a writer for the session's audio. Reopening an existing part
// file appends to it, which is what lets a reconnecting client keep its
// already-uploaded audio.
func (s *Store) Open(sessionID string) (*Writer, error) {
	partPath := filepath.Join(s.dir, sessionID+".pcm.part")
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audio part file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audio part file: %w", err)
	}
	return &Writer{
		file:       f,
		partPath:   partPath,
		finalPath:  filepath.Join(s.dir, sessionID+".wav"),
		sampleRate: s.sampleRate,
		written:    info.Size(),
	}, nil
}

// Writer appends raw PCM for one session and finalizes it to a WAV file.
type Writer struct {
	mu         sync.Mutex
	file       *os.File
	partPath   string
	finalPath  string
	sampleRate int
	written    int64
	done       bool
}

func (w *Writer) Append(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return ErrFinalized
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("append audio: %w", err)
	}
	return nil
}

func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Path is the destination of the finalized WAV.
func (w *Writer) Path() string { return w.finalPath }

// Finalize closes the part file for writes, wraps its contents into an
// immutable WAV, removes the part file and returns the WAV path.
func (w *Writer) Finalize() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return "", ErrFinalized
	}
	w.done = true
	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("close audio part file: %w", err)
	}

	pcm, err := os.ReadFile(w.partPath)
	if err != nil {
		return "", fmt.Errorf("read audio part file: %w", err)
	}
	if err := WriteWAVPCM16LEFile(w.finalPath, pcm, w.sampleRate); err != nil {
		return "", fmt.Errorf("write finalized wav: %w", err)
	}
	_ = os.Remove(w.partPath)
	return w.finalPath, nil
}

// Discard drops the part file without producing an artifact. Used for
// sessions that never received any audio.
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	_ = w.file.Close()
	return os.Remove(w.partPath)
}
