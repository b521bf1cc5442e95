package feed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/hyperscope/fillsync/internal/domain"
)

// Decompress inflates an LZ4-frame compressed payload. It has no side
// effects and no retry: decompression failures are deterministic given the
// same bytes, so retrying belongs to the fetch layer.
func Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrDecompression)
	}

	zr := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecompression, err)
	}
	return out, nil
}

// DecompressToText inflates an LZ4-frame compressed payload and returns it
// as a UTF-8 string.
func DecompressToText(compressed []byte) (string, error) {
	out, err := Decompress(compressed)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
