package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// File is a decoded SafeTensors file held in memory.
type File struct {
	header Header
	data   []byte
}

// ReadFile reads and decodes the file at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: checkpoint paths come from the cache layout.
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f)
}

// Read decodes a SafeTensors stream.
func Read(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: reading size: %w", ErrInvalidHeader, err)
	}
	if headerSize == 0 || headerSize > maxHeaderSize {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidHeader, headerSize)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	var header Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("safetensors: reading data: %w", err)
	}

	for name, info := range header.Tensors {
		if err := info.check(int64(len(data))); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
	}
	return &File{header: header, data: data}, nil
}

func (info TensorInfo) check(dataLen int64) error {
	size := info.DType.Size()
	if size == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, info.DType)
	}
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start {
		return fmt.Errorf("%w: offsets [%d, %d)", ErrInvalidHeader, start, end)
	}
	if want := int64(shape.NumElements() * size); end-start != want {
		return fmt.Errorf("%w: %d bytes for %v %s", ErrInvalidHeader, end-start, info.Shape, info.DType)
	}
	if end > dataLen {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, end, dataLen)
	}
	return nil
}

// Metadata returns the free-form string metadata.
func (f *File) Metadata() map[string]string {
	return f.header.Metadata
}

// Names returns the tensor names, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.header.Tensors))
	for name := range f.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry for name.
func (f *File) Info(name string) (TensorInfo, bool) {
	info, ok := f.header.Tensors[name]
	return info, ok
}

// Tensor decodes one tensor to float32.
func (f *File) Tensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, ok := f.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	buf := f.data[info.DataOffsets[0]:info.DataOffsets[1]]

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	out := raw.Data()
	switch info.DType {
	case F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	case F64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:])))
		}
	case BF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(buf[2*i:])) << 16)
		}
	case F16:
		for i := range out {
			out[i] = halfToFloat32(binary.LittleEndian.Uint16(buf[2*i:]))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, info.DType)
	}
	return raw, nil
}

// StateDict decodes every tensor.
func (f *File) StateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	state := make(map[string]*tensor.RawTensor, len(f.header.Tensors))
	for _, name := range f.Names() {
		raw, err := f.Tensor(name, device)
		if err != nil {
			return nil, err
		}
		state[name] = raw
	}
	return state, nil
}

// halfToFloat32 converts an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: renormalize
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
