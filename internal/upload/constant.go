package upload

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// ConstantBuffer is a host-visible buffer mapped once at creation and
// written every frame. Its size is rounded up with AlignedSize.
type ConstantBuffer struct {
	dev  gpucore.Device
	id   gpucore.BufferID
	mem  []byte
	size uint64
}

// NewConstantBuffer allocates an upload-heap buffer of AlignedSize(size)
// bytes and keeps it mapped.
func NewConstantBuffer(dev gpucore.Device, size uint64, label string) (*ConstantBuffer, error) {
	if size == 0 {
		return nil, errors.New("upload: constant buffer size must be positive")
	}
	aligned := AlignedSize(size)
	id, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label: label,
		Size:  aligned,
		Heap:  gpucore.HeapUpload,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload: create constant buffer %s", label)
	}
	mem, err := dev.Map(id)
	if err != nil {
		dev.DestroyBuffer(id)
		return nil, errors.Wrapf(err, "upload: map constant buffer %s", label)
	}
	return &ConstantBuffer{dev: dev, id: id, mem: mem, size: aligned}, nil
}

// ID returns the buffer handle.
func (c *ConstantBuffer) ID() gpucore.BufferID { return c.id }

// Size returns the aligned size in bytes.
func (c *ConstantBuffer) Size() uint64 { return c.size }

// Write stores values little-endian at the start of the buffer. The GPU
// reads the memory directly, so the caller must not overwrite constants
// a frame in flight still uses.
func (c *ConstantBuffer) Write(values []float32) error {
	if c.mem == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "upload: write to destroyed constant buffer")
	}
	if uint64(len(values))*4 > c.size {
		return errors.Newf("upload: %d floats exceed constant buffer of %d bytes", len(values), c.size)
	}
	for i, v := range values {
		binary.LittleEndian.PutUint32(c.mem[i*4:], math.Float32bits(v))
	}
	return nil
}

// Destroy releases the buffer.
func (c *ConstantBuffer) Destroy() {
	if c.mem == nil {
		return
	}
	c.dev.DestroyBuffer(c.id)
	c.mem = nil
}
