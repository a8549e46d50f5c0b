// Package upload validates candidate files before they enter the pipeline.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dropsight/internal/utils"
)

// DefaultMaxSizeBytes is the upload cap applied when none is configured (10 MiB).
const DefaultMaxSizeBytes int64 = 10 * 1024 * 1024

var (
	// ErrNoFile indicates that no file was supplied.
	ErrNoFile = errors.New("no file provided")
	// ErrTooLarge matches any *ValidationError of kind TooLarge via errors.Is.
	ErrTooLarge = errors.New("file too large")
)

// UploadedFile is the immutable snapshot of an accepted file.
type UploadedFile struct {
	Name      string `json:"name" msgpack:"name"`
	SizeBytes int64  `json:"size" msgpack:"size"`
	MIMEType  string `json:"type" msgpack:"type"`
}

// Candidate is a user-supplied file handle, from a picker or a drop.
type Candidate interface {
	Name() string
	Size() int64
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// ValidationKind enumerates acceptor failures.
type ValidationKind string

const TooLarge ValidationKind = "too_large"

// ValidationError is returned by Accept; it never reaches the pipeline state machine.
type ValidationError struct {
	Kind    ValidationKind
	Message string
	Limit   int64
	Size    int64
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool {
	return target == ErrTooLarge && e.Kind == TooLarge
}

// NewTooLarge builds the error for a file of size bytes over maxSizeBytes
// (DefaultMaxSizeBytes when <= 0). size may be -1 when the length is unknown.
func NewTooLarge(size, maxSizeBytes int64) *ValidationError {
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxSizeBytes
	}
	return &ValidationError{
		Kind:    TooLarge,
		Message: fmt.Sprintf("File size exceeds the maximum allowed size (%s)", utils.FormatBytes(maxSizeBytes)),
		Limit:   maxSizeBytes,
		Size:    size,
	}
}

// Accept validates the candidate against maxSizeBytes (DefaultMaxSizeBytes when <= 0)
// and snapshots its metadata. Nothing is read from the file.
func Accept(c Candidate, maxSizeBytes int64) (UploadedFile, error) {
	if c == nil {
		return UploadedFile{}, ErrNoFile
	}
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxSizeBytes
	}
	if c.Size() > maxSizeBytes {
		return UploadedFile{}, NewTooLarge(c.Size(), maxSizeBytes)
	}
	size := c.Size()
	if size < 0 {
		size = 0
	}
	return UploadedFile{Name: c.Name(), SizeBytes: size, MIMEType: c.MIMEType()}, nil
}

// ReadAll loads the whole candidate into memory. It refuses to read past the
// declared size so a file that grows after acceptance cannot bypass the cap.
func ReadAll(c Candidate) ([]byte, error) {
	if c == nil {
		return nil, ErrNoFile
	}
	rc, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Name(), err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, c.Size()+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Name(), err)
	}
	if int64(len(b)) > c.Size() {
		return nil, fmt.Errorf("read %s: file changed size after it was accepted", c.Name())
	}
	return b, nil
}

// LocalFile is a Candidate backed by a path on disk.
type LocalFile struct {
	path string
	size int64
}

// NewLocalFile stats path and returns a Candidate for it.
func NewLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{path: path, size: info.Size()}, nil
}

func (f *LocalFile) Name() string                 { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64                  { return f.size }
func (f *LocalFile) MIMEType() string             { return GuessMIME(f.path) }
func (f *LocalFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// FormFile adapts a multipart upload to a Candidate.
type FormFile struct {
	Header *multipart.FileHeader
}

func (f FormFile) Name() string { return filepath.Base(f.Header.Filename) }
func (f FormFile) Size() int64  { return f.Header.Size }

func (f FormFile) MIMEType() string {
	if ct := f.Header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return GuessMIME(f.Header.Filename)
}

func (f FormFile) Open() (io.ReadCloser, error) { return f.Header.Open() }

const (
	MIMECSV  = "text/csv"
	MIMETSV  = "text/tab-separated-values"
	MIMEXLS  = "application/vnd.ms-excel"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var extMIME = map[string]string{
	".csv":  MIMECSV,
	".tsv":  MIMETSV,
	".xls":  MIMEXLS,
	".xlsx": MIMEXLSX,
}

// GuessMIME returns an advisory MIME type from the file extension, or "" if unknown.
func GuessMIME(name string) string {
	return extMIME[strings.ToLower(filepath.Ext(name))]
}

// AcceptHint is the picker filter offered to the browser. It is a hint only.
const AcceptHint = ".csv, .tsv, .xlsx, " + MIMEXLS + ", " + MIMEXLSX

// Accepts reports whether a file matches the picker hint by extension or MIME type.
func Accepts(name, mime string) bool {
	if _, ok := extMIME[strings.ToLower(filepath.Ext(name))]; ok {
		return true
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, m := range extMIME {
		if mime == m {
			return true
		}
	}
	return false
}

// MemFile is a Candidate held in memory, e.g. data piped on stdin.
type MemFile struct {
	FileName string
	Type     string
	Data     []byte
}

func (f *MemFile) Name() string { return f.FileName }
func (f *MemFile) Size() int64  { return int64(len(f.Data)) }

func (f *MemFile) MIMEType() string {
	if f.Type != "" {
		return f.Type
	}
	return GuessMIME(f.FileName)
}

func (f *MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// Buffer copies a candidate into memory so it outlives its source, e.g. a
// multipart temp file that is removed when the request ends.
func Buffer(c Candidate) (*MemFile, error) {
	b, err := ReadAll(c)
	if err != nil {
		return nil, err
	}
	return &MemFile{FileName: c.Name(), Type: c.MIMEType(), Data: b}, nil
}
