// Package recording writes and reads recorded sessions: gzipped ndjson records,
// the same lines replay and clean consume.
package recording

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

type Writer struct {
	mu     sync.Mutex
	f      *os.File
	gzw    *gzip.Writer
	enc    *json.Encoder
	locked bool
	closed bool
	n      int64
	logger *slog.Logger

	WriterConfig
}

type WriterConfig struct {
	CompressionLevel int
	Flag             int
	FilePerm         os.FileMode
	DirPerm          os.FileMode
}

func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		CompressionLevel: params.DefaultGZipCompressionLevel,
		Flag:             os.O_WRONLY | os.O_APPEND | os.O_CREATE,
		FilePerm:         0660,
		DirPerm:          0770,
	}
}

// NewWriter opens path for appending. Each writer appends its own gzip member,
// so a file written by several sessions still reads as one stream.
func NewWriter(path string, config *WriterConfig) (*Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DirPerm); err != nil {
		return nil, err
	}
	fi, err := os.OpenFile(path, config.Flag, config.FilePerm)
	if err != nil {
		return nil, err
	}
	gzw, err := gzip.NewWriterLevel(fi, config.CompressionLevel)
	if err != nil {
		fi.Close()
		return nil, err
	}
	return &Writer{
		f:            fi,
		gzw:          gzw,
		enc:          json.NewEncoder(gzw),
		logger:       slog.With("d", "recording"),
		WriterConfig: *config,
	}, nil
}

// WriteRecord appends one record. It is safe for concurrent use.
func (w *Writer) WriteRecord(r types.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	w.lock()
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	w.n++
	return nil
}

// tee records r, logging instead of failing. Recording never holds up a live session.
func (w *Writer) tee(r types.Record) {
	if err := w.WriteRecord(r); err != nil {
		w.logger.Warn("Failed to record", "kind", r.Kind, "error", err)
	}
}

// Flush pushes buffered records through to the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.gzw.Flush()
}

// Count returns the number of records written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// lock takes an exclusive flock on the file.
// The lock is released when the file is closed.
func (w *Writer) lock() {
	if w.locked || w.closed || w.f == nil {
		return
	}
	_ = syscall.Flock(int(w.f.Fd()), syscall.LOCK_EX)
	w.locked = true
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.gzw.Close()
	if syncErr := w.f.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := w.f.Close(); err == nil {
		err = closeErr
	}
	w.logger.Info("Recording closed", "path", w.f.Name(), "records", w.n)
	return err
}

func (w *Writer) Path() string {
	return w.f.Name()
}

// NewReader returns r, gunzipped if it starts with the gzip magic number.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

type fileReader struct {
	io.Reader
	f *os.File
}

func (r *fileReader) Close() error {
	return r.f.Close()
}

// Open opens a recorded session, compressed or not.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileReader{Reader: r, f: f}, nil
}
