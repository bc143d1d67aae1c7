package upload

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// DynamicBuffer holds per-frame data such as camera matrices and joint
// palettes. Each frame slot has its own persistently mapped host-to-device
// buffer, written with a plain memory copy: no staging and no fence, because
// the frame loop has already waited for the slot's previous use.
type DynamicBuffer struct {
	allocator gpu.Allocator
	usage     gpu.BufferUsage
	class     gpu.ResourceClass
	slots     []gpu.Buffer
}

func NewDynamicBuffer(allocator gpu.Allocator, usage gpu.BufferUsage, class gpu.ResourceClass, slots, size int) (*DynamicBuffer, error) {
	d := &DynamicBuffer{allocator: allocator, usage: usage, class: class, slots: make([]gpu.Buffer, slots)}
	for i := range d.slots {
		if _, err := d.Ensure(i, size); err != nil {
			d.Destroy()
			return nil, err
		}
	}
	return d, nil
}

func (d *DynamicBuffer) Slots() int { return len(d.slots) }

func (d *DynamicBuffer) Buffer(slot int) gpu.Buffer {
	return d.slots[slot]
}

// Ensure makes the slot's buffer hold at least size bytes, growing it to the
// next power of two when it does not. It reports whether the buffer changed
// identity, in which case descriptor sets pointing at it must be rewritten.
// The slot's previous GPU use must be complete.
func (d *DynamicBuffer) Ensure(slot, size int) (bool, error) {
	if size <= 0 {
		return false, errors.Newf("dynamic %s buffer: invalid size %d", d.class, size)
	}
	if cur := d.slots[slot]; cur != nil && cur.Size() >= size {
		return false, nil
	}
	capacity := 256
	for capacity < size {
		capacity *= 2
	}
	buf, err := d.allocator.CreateBuffer(gpu.BufferInfo{
		Size:       capacity,
		Usage:      d.usage,
		Class:      d.class,
		Memory:     gpu.MemoryHostToDevice,
		Persistent: true,
	})
	if err != nil {
		return false, errors.Wrapf(err, "dynamic %s buffer: slot %d", d.class, slot)
	}
	if old := d.slots[slot]; old != nil {
		old.Destroy()
	}
	d.slots[slot] = buf
	return true, nil
}

// Write copies data to the start of the slot's buffer.
func (d *DynamicBuffer) Write(slot int, data []byte) error {
	if err := d.slots[slot].Write(0, data); err != nil {
		return errors.Wrapf(err, "dynamic %s buffer: slot %d", d.class, slot)
	}
	return nil
}

// Destroy releases every slot. It is safe to call twice.
func (d *DynamicBuffer) Destroy() {
	for i, b := range d.slots {
		if b != nil {
			b.Destroy()
			d.slots[i] = nil
		}
	}
}
