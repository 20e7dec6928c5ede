package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Buffered is a fully read response. It can be turned into any number of
// independent *http.Response values, which is how stored and live copies of
// the same network answer are kept apart.
type Buffered struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Read consumes and closes the response body.
func Read(res *http.Response) (Buffered, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Buffered{}, err
	}
	return Buffered{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
	}, nil
}

// OK reports whether the status is in the 2xx range.
func (b Buffered) OK() bool {
	return b.StatusCode >= 200 && b.StatusCode <= 299
}

// Response returns a new response with its own header map and body reader.
func (b Buffered) Response(req *http.Request) *http.Response {
	header := b.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Del("Content-Length")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", b.StatusCode, http.StatusText(b.StatusCode)),
		StatusCode:    b.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(b.Body)),
		ContentLength: int64(len(b.Body)),
		Request:       req,
	}
}

// ToBytes returns the HTTP/1.1 representation of the response.
func (b Buffered) ToBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	res := b.Response(nil)
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes parses the HTTP/1.1 representation written by ToBytes.
func FromBytes(bts []byte) (Buffered, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), nil)
	if err != nil {
		return Buffered{}, err
	}
	return Read(res)
}
