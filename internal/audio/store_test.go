package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"
)

func TestWriterAppendAndFinalize(t *testing.T) {
	store, err := NewStore(t.TempDir(), 16000)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	w, err := store.Open("m-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	pcm := []byte{1, 2, 3, 4, 5, 6}
	if err := w.Append(pcm[:3]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Append(pcm[3:]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if w.BytesWritten() != int64(len(pcm)) {
		t.Fatalf("BytesWritten() = %d, want %d", w.BytesWritten(), len(pcm))
	}

	path, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read finalized wav: %v", err)
	}
	if len(out) != wavHeaderSize+len(pcm) {
		t.Fatalf("wav size = %d, want %d", len(out), wavHeaderSize+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q %q", out[0:4], out[8:12])
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data chunk size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(out[wavHeaderSize:], pcm) {
		t.Fatalf("wav payload does not match appended pcm")
	}
}

func TestWriterFinalizeIsOneShot(t *testing.T) {
	store, err := NewStore(t.TempDir(), 16000)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	w, err := store.Open("m-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if _, err := w.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second Finalize() error = %v, want ErrFinalized", err)
	}
	if err := w.Append([]byte{1}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("Append() after Finalize error = %v, want ErrFinalized", err)
	}
}

func TestWriterReopenAppends(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 16000)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	w1, err := store.Open("m-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := w1.Append([]byte("abc")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_ = w1.file.Close()

	// A reconnecting client reopens the same part file and keeps going.
	w2, err := store.Open("m-1")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if w2.BytesWritten() != 3 {
		t.Fatalf("BytesWritten() after reopen = %d, want 3", w2.BytesWritten())
	}
	if err := w2.Append([]byte("def")); err != nil {
		t.Fatalf("Append() after reopen error = %v", err)
	}
	path, err := w2.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	out, _ := os.ReadFile(path)
	if !bytes.Equal(out[wavHeaderSize:], []byte("abcdef")) {
		t.Fatalf("wav payload = %q, want %q", out[wavHeaderSize:], "abcdef")
	}
}

func TestWriterDiscardRemovesPartFile(t *testing.T) {
	store, err := NewStore(t.TempDir(), 16000)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	w, err := store.Open("m-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := w.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(w.partPath); !os.IsNotExist(err) {
		t.Fatalf("part file still exists after Discard")
	}
}
