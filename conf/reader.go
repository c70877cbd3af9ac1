package conf

import (
	"bytes"
	"io"
	"os"
)

// NewEnvExpandedReader wraps r so that ${VAR} and $VAR references in
// the stream are replaced with the current environment before parsing.
func NewEnvExpandedReader(r io.Reader) io.Reader {
	return &envExpandedReader{src: r}
}

type envExpandedReader struct {
	src io.Reader
	buf *bytes.Reader
	err error
}

func (r *envExpandedReader) Read(p []byte) (int, error) {
	if r.buf == nil && r.err == nil {
		data, err := io.ReadAll(r.src)
		if err != nil {
			r.err = err
		} else {
			expanded := os.ExpandEnv(string(data))
			r.buf = bytes.NewReader([]byte(expanded))
		}
	}

	if r.err != nil {
		return 0, r.err
	}

	return r.buf.Read(p)
}
