package runner

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// outputCompressor is the compressor applied to attempt output.
var outputCompressor = compressOutput

// deflateBound is the documented worst case size of a deflate stream.
func deflateBound(n int) int {
	return int(float64(n)*1.001 + 13.0)
}

// compressOutput deflates output at the default level and base64 encodes the
// result. The ratio is only meaningful when the input was not empty; ok is
// false when ratio must be left unchanged.
func compressOutput(output string) (encoded string, ratio float64, ratioOK bool, err error) {
	buf := bytes.NewBuffer(make([]byte, 0, deflateBound(len(output))))
	zw, err := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to initialise compressor: %w", err)
	}
	if _, err := zw.Write([]byte(output)); err != nil {
		return "", 0, false, fmt.Errorf("failed to compress output: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", 0, false, fmt.Errorf("failed to finish compressed stream: %w", err)
	}

	encoded = base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(output) > 0 {
		return encoded, float64(buf.Len()) / float64(len(output)), true, nil
	}
	return encoded, 0, false, nil
}
