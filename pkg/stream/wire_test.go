package stream_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/wormhole/pkg/stream"
)

func TestWritePartLayout(t *testing.T) {
	is := is.New(t)
	buf := bytes.Buffer{}
	is.NoErr(stream.WritePart(&buf, "frame", "image/jpeg", []byte{0xff, 0xd8, 0xff, 0xd9}))
	is.Equal(buf.String(), "--frame\r\nContent-Type: image/jpeg\r\n\r\n\xff\xd8\xff\xd9\r\n")
}

func TestContentTypeNamesBoundary(t *testing.T) {
	is := is.New(t)
	is.Equal(stream.ContentType("frame"), "multipart/x-mixed-replace; boundary=frame")
}

func TestValidateBoundary(t *testing.T) {
	is := is.New(t)
	is.NoErr(stream.ValidateBoundary(stream.DefaultBoundary))
	is.True(stream.ValidateBoundary("") != nil)
	is.True(stream.ValidateBoundary("has\r\nnewline") != nil)
}

func TestKindOfClassifiesSentinels(t *testing.T) {
	is := is.New(t)
	is.Equal(stream.KindOf(nil), stream.KindNone)
	is.Equal(stream.KindOf(stream.ErrSourceUnavailable), stream.KindSourceUnavailable)
	is.Equal(stream.KindOf(stream.ErrFilter), stream.KindFilter)
	is.Equal(stream.KindOf(stream.ErrEncode), stream.KindEncode)
	is.Equal(stream.KindOf(stream.ErrTransportWrite), stream.KindTransportWrite)
	is.Equal(stream.KindOf(errors.New("other")), stream.KindUnknown)

	is.True(stream.Recoverable(stream.ErrFilter))
	is.True(!stream.Recoverable(stream.ErrTransportWrite))
	is.True(!stream.Recoverable(nil))
}
