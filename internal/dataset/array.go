package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Element types of stored arrays.
const (
	dtypeUint8   = "uint8"
	dtypeBool    = "bool"
	dtypeInt16   = "int16"
	dtypeUint32  = "uint32"
	dtypeFloat32 = "float32"
	dtypeInt64   = "int64"
	dtypeString  = "string"
)

// Chunk encodings.
const (
	chunkRaw  = "none"
	chunkZstd = "zstd+shuffle"
)

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case dtypeUint8, dtypeBool:
		return 1, nil
	case dtypeInt16:
		return 2, nil
	case dtypeUint32, dtypeFloat32:
		return 4, nil
	case dtypeInt64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: unsupported dtype %q", ErrSchemaMismatch, dtype)
	}
}

// arrayInfo describes an array chunked along its first axis.
type arrayInfo struct {
	DType    string `json:"dtype"`
	Shape    []int  `json:"shape"`
	ChunkLen int    `json:"chunk_len"` // rows per chunk
	Encoding string `json:"encoding"`
}

func (a arrayInfo) rows() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

func (a arrayInfo) rowSize() (int, error) {
	n, err := dtypeSize(a.DType)
	if err != nil {
		return 0, err
	}
	for _, d := range a.Shape[1:] {
		n *= d
	}
	return n, nil
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create zstd encoder: %v", ErrExternal, err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create zstd decoder: %v", ErrExternal, err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress chunk: %v", ErrSchemaMismatch, err)
	}
	return out, nil
}

// shuffle groups the i-th byte of every element together, which lets zstd
// find the slowly varying high bytes of PCM samples and offsets.
func shuffle(data []byte, elemSize int) []byte {
	if elemSize <= 1 || len(data)%elemSize != 0 {
		return data
	}
	n := len(data) / elemSize
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for j := 0; j < elemSize; j++ {
			out[j*n+i] = data[i*elemSize+j]
		}
	}
	return out
}

func unshuffle(data []byte, elemSize int) []byte {
	if elemSize <= 1 || len(data)%elemSize != 0 {
		return data
	}
	n := len(data) / elemSize
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for j := 0; j < elemSize; j++ {
			out[i*elemSize+j] = data[j*n+i]
		}
	}
	return out
}

func encodeChunk(info arrayInfo, raw []byte) ([]byte, error) {
	if info.Encoding == chunkRaw {
		return raw, nil
	}
	size, err := dtypeSize(info.DType)
	if err != nil {
		return nil, err
	}
	return compress(shuffle(raw, size))
}

func decodeChunk(info arrayInfo, data []byte) ([]byte, error) {
	switch info.Encoding {
	case chunkRaw:
		return data, nil
	case chunkZstd:
		size, err := dtypeSize(info.DType)
		if err != nil {
			return nil, err
		}
		raw, err := decompress(data)
		if err != nil {
			return nil, err
		}
		return unshuffle(raw, size), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunk encoding %q", ErrSchemaMismatch, info.Encoding)
	}
}

func int16Bytes(v []int16) []byte {
	out := make([]byte, 0, len(v)*2)
	for _, x := range v {
		out = binary.LittleEndian.AppendUint16(out, uint16(x))
	}
	return out
}

func bytesInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func int64Bytes(v []int64) []byte {
	out := make([]byte, 0, len(v)*8)
	for _, x := range v {
		out = binary.LittleEndian.AppendUint64(out, uint64(x))
	}
	return out
}

func bytesInt64(b []byte) []int64 {
	out := make([]int64, len(b)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func uint32Bytes(v []uint32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, x := range v {
		out = binary.LittleEndian.AppendUint32(out, x)
	}
	return out
}

func bytesUint32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, x := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
	}
	return out
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func boolBytes(v []bool) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		if x {
			out[i] = 1
		}
	}
	return out
}

func bytesBool(b []byte) []bool {
	out := make([]bool, len(b))
	for i, x := range b {
		out[i] = x != 0
	}
	return out
}
