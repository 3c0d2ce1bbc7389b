package hal

import (
	"fmt"
	"time"
)

// singleTimeTimeout bounds the host wait of a one-time submission.
const singleTimeTimeout = 30 * time.Second

// SubmitSingleTime records commands with record, submits them and blocks until
// the GPU has executed them. The command buffer and fence are released before
// returning. Nested calls from inside record are allowed; each uses its own
// command buffer.
func SubmitSingleTime(device Device, label string, record func(enc CommandEncoder) error) error {
	enc, err := device.CreateCommandEncoder(label)
	if err != nil {
		return err
	}

	if err := record(enc); err != nil {
		if cb, ferr := enc.Finish(); ferr == nil {
			device.FreeCommandBuffer(cb)
		}
		return err
	}

	cb, err := enc.Finish()
	if err != nil {
		return err
	}
	defer device.FreeCommandBuffer(cb)

	fence, err := device.CreateFence(false)
	if err != nil {
		return err
	}
	defer device.DestroyFence(fence)

	if err := device.Queue().Submit(&SubmitInfo{CommandBuffer: cb, Fence: fence}); err != nil {
		return fmt.Errorf("submit %s: %w", label, err)
	}
	if err := device.WaitFence(fence, singleTimeTimeout); err != nil {
		return fmt.Errorf("wait %s: %w", label, err)
	}
	return nil
}

// UploadBuffer creates a device-local buffer with usage|BufferUsageTransferDst
// and fills it with data through a host-visible staging buffer.
func UploadBuffer(device Device, label string, usage BufferUsage, data []byte) (Buffer, error) {
	size := uint64(len(data))
	if size == 0 {
		// Zero sized buffers are invalid; keep one element so bindings stay valid.
		size = 4
	}

	staging, err := device.CreateBuffer(&BufferDescriptor{
		Label:  label + " Staging",
		Size:   size,
		Usage:  BufferUsageTransferSrc,
		Memory: MemoryHostVisible,
	})
	if err != nil {
		return nil, err
	}
	defer device.DestroyBuffer(staging)

	mapped, err := device.MapBuffer(staging)
	if err != nil {
		return nil, err
	}
	copy(mapped, data)
	device.UnmapBuffer(staging)

	buf, err := device.CreateBuffer(&BufferDescriptor{
		Label:  label,
		Size:   size,
		Usage:  usage | BufferUsageTransferDst,
		Memory: MemoryDeviceLocal,
	})
	if err != nil {
		return nil, err
	}

	err = SubmitSingleTime(device, "Upload "+label, func(enc CommandEncoder) error {
		enc.CopyBuffer(staging, buf, BufferCopy{Size: size})
		return nil
	})
	if err != nil {
		device.DestroyBuffer(buf)
		return nil, err
	}

	Logger().Debug("hal: buffer uploaded", "label", label, "bytes", size)
	return buf, nil
}
