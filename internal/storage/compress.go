package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const zstdSuffix = ".zst"

// Shared codec instances; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// DecompressZstd reverses the compression applied to stored objects.
func DecompressZstd(compressed []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd decompress: %w", err)
	}
	return out, nil
}
