package video

// Slack is extra headroom allocated past SizeBytes. Some converters write one
// byte beyond the last pixel when processing odd widths.
const Slack = 1

// FrameBuffer is the single reusable frame region owned by the capture loop
type FrameBuffer struct {
	desc     StreamDescriptor
	data     []byte
	released bool
}

// NewFrameBuffer allocates a buffer large enough for one frame of desc
func NewFrameBuffer(desc StreamDescriptor) *FrameBuffer {
	return &FrameBuffer{
		desc: desc,
		data: make([]byte, desc.SizeBytes+Slack),
	}
}

// Bytes returns exactly one frame worth of storage, or nil once released
func (b *FrameBuffer) Bytes() []byte {
	if b.released {
		return nil
	}
	return b.data[:b.desc.SizeBytes]
}

// Cap returns the allocated size including slack
func (b *FrameBuffer) Cap() int {
	return len(b.data)
}

// Descriptor returns the stream this buffer was sized for
func (b *FrameBuffer) Descriptor() StreamDescriptor {
	return b.desc
}

// Release drops the backing storage. Safe to call more than once.
func (b *FrameBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.data = nil
}

// Released reports whether Release was called
func (b *FrameBuffer) Released() bool {
	return b.released
}
