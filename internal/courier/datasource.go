package courier

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gabriel-vasile/mimetype"
)

// DataSource is the content of an attachment. The dispatcher opens it once
// per send and attaches the bytes unchanged.
type DataSource interface {
	// Name is the source's own name, such as the base name of a file.
	Name() string
	// ContentType is the MIME type of the content.
	ContentType() string
	Open() (io.ReadCloser, error)
}

type bytesSource struct {
	name        string
	contentType string
	data        []byte
}

// BytesSource returns a DataSource over an in-memory copy of data. When
// contentType is empty it is detected from the content.
func BytesSource(name, contentType string, data []byte) DataSource {
	data = slices.Clone(data)
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return &bytesSource{name: name, contentType: contentType, data: data}
}

func (s *bytesSource) Name() string        { return s.name }
func (s *bytesSource) ContentType() string { return s.contentType }

func (s *bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

type fileSource struct {
	path        string
	contentType string
}

// FileSource returns a DataSource reading the file at path when opened.
// The content type is detected from the file, falling back to
// application/octet-stream when it cannot be read.
func FileSource(path string) DataSource {
	return &fileSource{path: path}
}

// FileSourceWithType is like FileSource with an explicit content type.
func FileSourceWithType(path, contentType string) DataSource {
	return &fileSource{path: path, contentType: contentType}
}

func (s *fileSource) Name() string { return filepath.Base(s.path) }

func (s *fileSource) ContentType() string {
	if s.contentType != "" {
		return s.contentType
	}
	mt, err := mimetype.DetectFile(s.path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func (s *fileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}
