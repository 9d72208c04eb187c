// Package tensor provides the float32 tensor types shared by the compute
// backends, the recording backend and the neural network modules.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Vulkan:
		return "vulkan"
	case Metal:
		return "metal"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// ParseDevice parses a device name as produced by Device.String.
func ParseDevice(name string) (Device, error) {
	for d := CPU; d <= WebGPU; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return CPU, fmt.Errorf("unknown device %q", name)
}

// RawTensor is the low-level tensor representation: a dense row-major
// float32 buffer plus its shape.
//
// Backends always return a fresh *RawTensor from every operation, so a
// pointer identifies one value in a computation. The recording backend
// relies on that.
type RawTensor struct {
	data   []float32
	shape  Shape
	device Device
}

// NewRaw creates a zero-filled RawTensor with the given shape.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		device: device,
	}, nil
}

// MustRaw is like NewRaw but panics on an invalid shape.
// Backends use it where a bad shape is a programming error.
func MustRaw(shape Shape, device Device) *RawTensor {
	r, err := NewRaw(shape, device)
	if err != nil {
		panic(err)
	}
	return r
}

// FromFloat32 wraps data (copied) into a RawTensor of the given shape.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, device)
	if err != nil {
		return nil, err
	}
	copy(r.data, data)
	return r, nil
}

// FromBytes decodes little-endian float32 bytes into a RawTensor.
func FromBytes(buf []byte, shape Shape, device Device) (*RawTensor, error) {
	if len(buf) != shape.NumElements()*4 {
		return nil, fmt.Errorf("shape %v requires %d bytes, but got %d", shape, shape.NumElements()*4, len(buf))
	}
	r, err := NewRaw(shape, device)
	if err != nil {
		return nil, err
	}
	for i := range r.data {
		r.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return r, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data) * 4
}

// Data returns the underlying float32 slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []float32 {
	return r.data
}

// Bytes encodes the data as little-endian float32 bytes.
func (r *RawTensor) Bytes() []byte {
	buf := make([]byte, len(r.data)*4)
	for i, v := range r.data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Clone returns a deep copy with its own buffer.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{data: data, shape: r.shape.Clone(), device: r.device}
}

// View returns a new RawTensor sharing the buffer under a different shape.
// The element count must match.
func (r *RawTensor) View(shape Shape) *RawTensor {
	if shape.NumElements() != len(r.data) {
		panic(fmt.Sprintf("view: cannot view %v as %v", r.shape, shape))
	}
	return &RawTensor{data: r.data, shape: shape.Clone(), device: r.device}
}
