package stream

import (
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
)

const DefaultBoundary = "WORMHOLE"

var crlf = []byte("\r\n")

// ContentType is the response content type announcing a stream of
// parts separated by boundary.
func ContentType(boundary string) string {
	return "multipart/x-mixed-replace; boundary=" + boundary
}

// ValidateBoundary checks boundary is usable as a multipart delimiter.
func ValidateBoundary(boundary string) error {
	return multipart.NewWriter(io.Discard).SetBoundary(boundary)
}

// PartHeader renders everything which precedes a part's payload.
func PartHeader(boundary, contentType string) []byte {
	return []byte("--" + boundary + "\r\nContent-Type: " + contentType + "\r\n\r\n")
}

// WritePart emits one complete part: delimiter, header, payload and
// the trailing CRLF.
func WritePart(w io.Writer, boundary, contentType string, payload []byte) error {
	parts := net.Buffers{PartHeader(boundary, contentType), payload, crlf}
	_, err := parts.WriteTo(w)
	return err
}

// Transport is the client connection a session writes parts to.
type Transport interface {
	io.Writer
	Flush() error
}

// NewTransport wraps w, flushing through the http response controller
// when w is a response writer.
func NewTransport(w io.Writer) Transport {
	if rw, ok := w.(http.ResponseWriter); ok {
		return &responseTransport{ResponseWriter: rw, rc: http.NewResponseController(rw)}
	}
	if t, ok := w.(Transport); ok {
		return t
	}
	return writerTransport{w}
}

type responseTransport struct {
	http.ResponseWriter
	rc *http.ResponseController
}

func (t *responseTransport) Flush() error {
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

type writerTransport struct {
	io.Writer
}

func (writerTransport) Flush() error { return nil }
