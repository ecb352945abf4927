// replay_codec.go compresses finalized replay captures.

package beacon

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Replay encodings, as written to replay_encoding.
const (
	ReplayCodecZstd = "zstd"
	ReplayCodecLZ4  = "lz4"
	ReplayCodecNone = "none"
)

var errIncompressible = errors.New("data is incompressible")

// replayCodec compresses the JSON frame array of a capture.
type replayCodec interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte, rawSize int) ([]byte, error)
}

// codecFor resolves a configured codec name. An empty name is zstd.
func codecFor(name string) (replayCodec, error) {
	switch name {
	case "", ReplayCodecZstd:
		return zstdCodec{}, nil
	case ReplayCodecLZ4:
		return lz4Codec{}, nil
	case ReplayCodecNone:
		return noneCodec{}, nil
	}
	return nil, fmt.Errorf("unknown replay codec %q", name)
}

// zstd encoder and decoder are safe for concurrent use and reused.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("beacon: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("beacon: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return ReplayCodecZstd }

func (zstdCodec) Encode(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decode(data []byte, rawSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// lz4Codec uses block mode; the raw size travels alongside the data.
type lz4Codec struct{}

func (lz4Codec) Name() string { return ReplayCodecLZ4 }

func (lz4Codec) Encode(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decode(data []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawSize)
	}
	return dst, nil
}

type noneCodec struct{}

func (noneCodec) Name() string { return ReplayCodecNone }

func (noneCodec) Encode(data []byte) ([]byte, error) { return data, nil }

func (noneCodec) Decode(data []byte, _ int) ([]byte, error) { return data, nil }
