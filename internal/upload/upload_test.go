package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestAcceptWithinLimit(t *testing.T) {
	f := &MemFile{FileName: "sales.csv", Data: []byte("a,b\n1,2\n")}
	got, err := Accept(f, 0)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Name != "sales.csv" || got.SizeBytes != 8 || got.MIMEType != MIMECSV {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestAcceptTooLarge(t *testing.T) {
	f := &MemFile{FileName: "big.csv", Data: make([]byte, 2049)}
	_, err := Accept(f, 2048)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Message != "File size exceeds the maximum allowed size (2 KB)" {
		t.Fatalf("message = %q", ve.Message)
	}
	if ve.Limit != 2048 || ve.Size != 2049 {
		t.Fatalf("limit/size = %d/%d", ve.Limit, ve.Size)
	}
}

func TestAcceptDefaultLimitMessage(t *testing.T) {
	f := &MemFile{FileName: "huge.xlsx", Data: make([]byte, DefaultMaxSizeBytes+1)}
	_, err := Accept(f, 0)
	if err == nil || err.Error() != "File size exceeds the maximum allowed size (10 MB)" {
		t.Fatalf("unexpected error: %v", err)
	}
	// exactly at the cap is fine
	f.Data = f.Data[:DefaultMaxSizeBytes]
	if _, err := Accept(f, 0); err != nil {
		t.Fatalf("at cap: %v", err)
	}
}

func TestAcceptNil(t *testing.T) {
	if _, err := Accept(nil, 0); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
}

func TestReadAllLocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.tsv")
	if err := os.WriteFile(p, []byte("x\ty\n1\t2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lf, err := NewLocalFile(p)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if lf.Name() != "data.tsv" || lf.MIMEType() != MIMETSV {
		t.Fatalf("meta = %s %s", lf.Name(), lf.MIMEType())
	}
	b, err := ReadAll(lf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "x\ty\n1\t2\n" {
		t.Fatalf("content = %q", b)
	}
	// growing the file after acceptance is refused
	if err := os.WriteFile(p, []byte("x\ty\n1\t2\n3\t4\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := ReadAll(lf); err == nil {
		t.Fatalf("expected error for grown file")
	}
}

func TestNewLocalFileDirectory(t *testing.T) {
	if _, err := NewLocalFile(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
}

func TestFormFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "report.xlsx")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = fw.Write([]byte("PK\x03\x04"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse: %v", err)
	}
	fh := req.MultipartForm.File["file"][0]
	ff := FormFile{Header: fh}
	if ff.Name() != "report.xlsx" || ff.Size() != 4 {
		t.Fatalf("meta = %s %d", ff.Name(), ff.Size())
	}
	// CreateFormFile sends application/octet-stream, so the extension wins
	if ff.MIMEType() != MIMEXLSX {
		t.Fatalf("mime = %q", ff.MIMEType())
	}
	b, err := ReadAll(ff)
	if err != nil || string(b) != "PK\x03\x04" {
		t.Fatalf("read = %q, %v", b, err)
	}
}

func TestAccepts(t *testing.T) {
	cases := []struct {
		name, mime string
		want       bool
	}{
		{"a.csv", "", true},
		{"A.XLSX", "", true},
		{"notes.txt", "", false},
		{"blob", MIMEXLS, true},
		{"blob", "image/png", false},
	}
	for _, c := range cases {
		if got := Accepts(c.name, c.mime); got != c.want {
			t.Errorf("Accepts(%q,%q) = %v", c.name, c.mime, got)
		}
	}
}

func TestDropZone(t *testing.T) {
	var z DropZone
	if !z.DragEnter() || !z.Dragging() {
		t.Fatalf("enter should set dragging")
	}
	if z.DragOver() {
		t.Fatalf("over while dragging should not report a change")
	}
	if !z.DragLeave() || z.Dragging() {
		t.Fatalf("leave should clear dragging")
	}
	z.DragEnter()
	z.Drop()
	if z.Dragging() {
		t.Fatalf("drop should clear dragging")
	}
}

func TestBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.tsv")
	if err := os.WriteFile(path, []byte("a\tb\n1\t2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lf, err := NewLocalFile(path)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	mem, err := Buffer(lf)
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mem.Name() != "metrics.tsv" || mem.Size() != 8 || mem.MIMEType() != MIMETSV {
		t.Fatalf("unexpected copy: %q %d %q", mem.Name(), mem.Size(), mem.MIMEType())
	}
	b, err := ReadAll(mem)
	if err != nil || !bytes.Equal(b, []byte("a\tb\n1\t2\n")) {
		t.Fatalf("read copy: %q %v", b, err)
	}
}
