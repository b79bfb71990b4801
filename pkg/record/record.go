// Package record writes and reads per-run detection logs.
//
// A log starts with an 8-byte magic, followed by records framed as
// [unix-nano u64 LE][payload length u32 LE][CBOR payload].
package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a detection log.
const Magic = "ANIMLOG1"

// Ext is the file extension used by Create.
const Ext = ".animlog"

const headerSize = 12

// maxPayload bounds a single record when reading untrusted files.
const maxPayload = 16 << 20

var (
	ErrBadMagic = errors.New("record: not a detection log")
	ErrClosed   = errors.New("record: writer closed")
	ErrTooLarge = errors.New("record: payload too large")
)

// Box is one detection as stored in a log.
type Box struct {
	X1         int     `cbor:"x1" json:"x1"`
	Y1         int     `cbor:"y1" json:"y1"`
	X2         int     `cbor:"x2" json:"x2"`
	Y2         int     `cbor:"y2" json:"y2"`
	Confidence float64 `cbor:"conf" json:"confidence"`
	ClassID    int     `cbor:"class" json:"class_id"`
	Name       string  `cbor:"name" json:"name"`
}

// Record is the payload for one processed frame.
type Record struct {
	RunID            string   `cbor:"run" json:"run_id"`
	Index            int      `cbor:"index" json:"index"`
	Source           string   `cbor:"source,omitempty" json:"source,omitempty"`
	Detections       []Box    `cbor:"dets" json:"detections"`
	CarnivorousCount int      `cbor:"carn" json:"carnivorous_count"`
	Species          []string `cbor:"species" json:"species"`
}

// Entry is a record with its write time.
type Entry struct {
	Time time.Time `json:"time"`
	Record
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Writer appends records to a log. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	w      *bufio.Writer
	path   string
	now    func() time.Time
	closed bool
}

// NewWriter writes the magic to w and returns a writer over it. If w is an
// io.Closer it is closed by Close.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString(Magic); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	rw := &Writer{w: bw, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		rw.c = c
	}
	return rw, nil
}

// Create opens a new log in dir named after the current time and name.
func Create(dir, name string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", time.Now().Format("20060102_150405"), name, Ext))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.path = path
	return w, nil
}

// Path returns the file path for writers made by Create.
func (w *Writer) Path() string {
	return w.path
}

// Write appends one record and flushes it.
func (w *Writer) Write(rec Record) error {
	payload, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record: encode: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(w.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:], uint32(len(payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.w.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads records in order.
type Reader struct {
	r *bufio.Reader
}

// NewReader checks the magic and returns a reader positioned at the first
// record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, magic)
	}
	return &Reader{r: br}, nil
}

// Next returns the next entry, or io.EOF after the last one. A truncated
// record yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Entry, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return Entry{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:])
	if size > maxPayload {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, err
	}

	var rec Record
	if err := cbor.Unmarshal(payload, &rec); err != nil {
		return Entry{}, fmt.Errorf("record: decode: %w", err)
	}
	return Entry{Time: time.Unix(0, ts), Record: rec}, nil
}

// ReadFile reads every entry of the log at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
