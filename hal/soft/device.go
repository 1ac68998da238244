package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/andewx/dieselvk/hal"
)

// Device is the soft logical device. It implements hal.Device.
type Device struct {
	adapter hal.Adapter
	opts    Options
	kernels *registry

	// mu guards every resource table and the lifetime counters. The queue
	// goroutine holds it while executing a submission.
	mu     sync.Mutex
	nextID atomic.Uint64

	queue    chan *submission
	stopped  chan struct{}
	inflight sync.WaitGroup
	gate     gate

	lost      error
	destroyed bool
}

var _ hal.Device = (*Device)(nil)

func newDevice(adapter hal.Adapter, opts Options, kernels *registry) *Device {
	d := &Device{
		adapter: adapter,
		opts:    opts,
		kernels: kernels,
		queue:   make(chan *submission, opts.QueueDepth),
		stopped: make(chan struct{}),
	}
	d.gate.cond = sync.NewCond(&d.gate.mu)
	go d.run()
	slogger().Debug("soft: device opened",
		"memory_types", len(opts.MemoryTypes),
		"non_coherent_atom_size", opts.NonCoherentAtomSize)
	return d
}

// RegisterKernel makes fn the implementation of shader modules created from code.
func (d *Device) RegisterKernel(code []byte, entryPoint string, fn KernelFunc) {
	d.kernels.register(code, entryPoint, fn)
}

// Lost returns the fault that lost the device, or nil.
func (d *Device) Lost() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) Adapter() hal.Adapter { return d.adapter }

func (d *Device) MemoryTypes() []hal.MemoryType {
	return append([]hal.MemoryType(nil), d.opts.MemoryTypes...)
}

func (d *Device) Limits() hal.Limits { return d.adapter.Limits }

// handle is embedded by every soft resource.
type handle struct {
	kind  string
	id    uint64
	label string

	// refs counts pending submissions referencing the resource.
	refs      int
	destroyed bool
}

func (h *handle) String() string {
	if h.label != "" {
		return fmt.Sprintf("soft.%s#%d(%s)", h.kind, h.id, h.label)
	}
	return fmt.Sprintf("soft.%s#%d", h.kind, h.id)
}

func (h *handle) base() *handle { return h }

type resource interface {
	hal.Resource
	base() *handle
}

func (d *Device) newHandle(kind, label string) handle {
	return handle{kind: kind, id: d.nextID.Add(1), label: label}
}

// retire marks r destroyed. It panics when r is referenced by a pending
// submission or was already destroyed.
func retire(r resource) {
	h := r.base()
	if h.refs > 0 {
		panic(fmt.Sprintf("soft: %s destroyed while referenced by a pending submission", h))
	}
	if h.destroyed {
		panic(fmt.Sprintf("soft: %s destroyed twice", h))
	}
	h.destroyed = true
}

func cast[T resource](r hal.Resource) T {
	v, ok := r.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("soft: %v is not a %T", r, zero))
	}
	if v.base().destroyed {
		panic(fmt.Sprintf("soft: use of destroyed %s", v))
	}
	return v
}

func alignUp(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return (v + a - 1) / a * a
}

// alignedBytes returns n zero bytes backed by 8-byte aligned storage.
func alignedBytes(n uint64) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}

type memory struct {
	handle
	typ  hal.MemoryType
	data []byte
	// shadow is the host view of non-coherent memory. It only exchanges
	// contents with data on flush and invalidate.
	shadow  []byte
	mapped  bool
	mapOff  uint64
	mapSize uint64
}

func (m *memory) coherent() bool {
	return m.typ.Properties.Has(hal.MemoryPropertyHostCoherent)
}

func (d *Device) AllocateMemory(typeIndex uint32, size uint64) (hal.Memory, error) {
	if int(typeIndex) >= len(d.opts.MemoryTypes) {
		return nil, fmt.Errorf("%w: memory type %d does not exist", hal.ErrInvalidUsage, typeIndex)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized allocation", hal.ErrInvalidUsage)
	}
	if size > d.opts.MaxAllocationSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte allocation limit",
			hal.ErrOutOfMemory, size, d.opts.MaxAllocationSize)
	}
	m := &memory{
		handle: d.newHandle("memory", ""),
		typ:    d.opts.MemoryTypes[typeIndex],
		data:   alignedBytes(size),
	}
	if m.typ.Properties.Has(hal.MemoryPropertyHostVisible) && !m.coherent() {
		m.shadow = alignedBytes(size)
	}
	slogger().Debug("soft: memory allocated", "memory", m, "type", typeIndex, "size", size)
	return m, nil
}

func (d *Device) FreeMemory(mem hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*memory](mem))
}

func (d *Device) resolveRange(m *memory, offset, size uint64) (uint64, error) {
	total := uint64(len(m.data))
	if offset > total {
		return 0, fmt.Errorf("%w: offset %d beyond %s size %d", hal.ErrInvalidUsage, offset, m, total)
	}
	if size == hal.WholeSize {
		return total - offset, nil
	}
	if size > total-offset {
		return 0, fmt.Errorf("%w: range [%d, %d) beyond %s size %d", hal.ErrInvalidUsage, offset, offset+size, m, total)
	}
	return size, nil
}

func (d *Device) MapMemory(mem hal.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := cast[*memory](mem)
	if !m.typ.Properties.Has(hal.MemoryPropertyHostVisible) {
		return nil, fmt.Errorf("%w: %s is not host visible (%s)", hal.ErrMemoryMapFailed, m, m.typ.Properties)
	}
	if m.mapped {
		return nil, fmt.Errorf("%w: %s is already mapped", hal.ErrMemoryMapFailed, m)
	}
	n, err := d.resolveRange(m, offset, size)
	if err != nil {
		return nil, err
	}
	m.mapped, m.mapOff, m.mapSize = true, offset, n
	view := m.data
	if m.shadow != nil {
		view = m.shadow
	}
	return view[offset : offset+n : offset+n], nil
}

func (d *Device) UnmapMemory(mem hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := cast[*memory](mem)
	if !m.mapped {
		panic(fmt.Sprintf("soft: unmap of %s which is not mapped", m))
	}
	m.mapped = false
}

// checkMappedRange validates a flush or invalidate range the way the
// Vulkan valid usage rules for VkMappedMemoryRange do.
func (d *Device) checkMappedRange(m *memory, offset, size uint64) (uint64, error) {
	if !m.mapped {
		return 0, fmt.Errorf("%w: %s is not mapped", hal.ErrInvalidUsage, m)
	}
	atom := d.opts.NonCoherentAtomSize
	if offset%atom != 0 {
		return 0, fmt.Errorf("%w: offset %d is not a multiple of the non-coherent atom size %d",
			hal.ErrInvalidUsage, offset, atom)
	}
	n, err := d.resolveRange(m, offset, size)
	if err != nil {
		return 0, err
	}
	if size != hal.WholeSize && n%atom != 0 && offset+n != uint64(len(m.data)) {
		return 0, fmt.Errorf("%w: size %d is not a multiple of the non-coherent atom size %d",
			hal.ErrInvalidUsage, n, atom)
	}
	if offset < m.mapOff || offset+n > m.mapOff+m.mapSize {
		return 0, fmt.Errorf("%w: range [%d, %d) outside the mapped range of %s",
			hal.ErrInvalidUsage, offset, offset+n, m)
	}
	return n, nil
}

func (d *Device) FlushMappedRange(mem hal.Memory, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := cast[*memory](mem)
	n, err := d.checkMappedRange(m, offset, size)
	if err != nil {
		return err
	}
	if m.shadow != nil {
		copy(m.data[offset:offset+n], m.shadow[offset:offset+n])
	}
	return nil
}

func (d *Device) InvalidateMappedRange(mem hal.Memory, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := cast[*memory](mem)
	n, err := d.checkMappedRange(m, offset, size)
	if err != nil {
		return err
	}
	if m.shadow != nil {
		copy(m.shadow[offset:offset+n], m.data[offset:offset+n])
	}
	return nil
}

type buffer struct {
	handle
	size   uint64
	usage  hal.BufferUsageFlags
	req    hal.MemoryRequirements
	mem    *memory
	offset uint64
	hz     hazard
}

// bytes returns the device view of [offset, offset+size) of the buffer.
func (b *buffer) bytes(offset, size uint64) []byte {
	if size == hal.WholeSize {
		size = b.size - offset
	}
	start := b.offset + offset
	return b.mem.data[start : start+size : start+size]
}

func (d *Device) newRequirements(size uint64) hal.MemoryRequirements {
	align := d.opts.BufferAlignment
	if d.opts.NonCoherentAtomSize > align {
		align = d.opts.NonCoherentAtomSize
	}
	return hal.MemoryRequirements{
		Size:      alignUp(size, align),
		Alignment: d.opts.BufferAlignment,
		TypeBits:  d.opts.TypeBits,
	}
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", hal.ErrInvalidUsage)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("%w: buffer without usage flags", hal.ErrInvalidUsage)
	}
	b := &buffer{
		handle: d.newHandle("buffer", desc.Label),
		size:   desc.Size,
		usage:  desc.Usage,
		req:    d.newRequirements(desc.Size),
	}
	slogger().Debug("soft: buffer created", "buffer", b, "size", desc.Size, "usage", desc.Usage)
	return b, nil
}

func (d *Device) BufferMemoryRequirements(buf hal.Buffer) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cast[*buffer](buf).req
}

func (d *Device) BindBufferMemory(buf hal.Buffer, mem hal.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := cast[*buffer](buf)
	m := cast[*memory](mem)
	if b.mem != nil {
		return fmt.Errorf("%w: %s is already bound", hal.ErrInvalidUsage, b)
	}
	if b.req.TypeBits&(1<<m.typ.Index) == 0 {
		return fmt.Errorf("%w: memory type %d not allowed for %s", hal.ErrInvalidUsage, m.typ.Index, b)
	}
	if offset%b.req.Alignment != 0 {
		return fmt.Errorf("%w: offset %d not aligned to %d", hal.ErrInvalidUsage, offset, b.req.Alignment)
	}
	if offset+b.req.Size > uint64(len(m.data)) {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, %s has %d",
			hal.ErrInvalidUsage, b, b.req.Size, offset, m, len(m.data))
	}
	b.mem, b.offset = m, offset
	return nil
}

func (d *Device) DestroyBuffer(buf hal.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	retire(cast[*buffer](buf))
}

type image struct {
	handle
	desc   hal.ImageDescriptor
	req    hal.MemoryRequirements
	mem    *memory
	offset uint64
	views  int
}

type imageView struct {
	handle
	img *image
}

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	texel := desc.Format.TexelSize()
	if texel == 0 {
		return nil, fmt.Errorf("%w: unsupported image format %s", hal.ErrInvalidUsage, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: zero sized image %dx%d", hal.ErrInvalidUsage, desc.Width, desc.Height)
	}
	img := &image{
		handle: d.newHandle("image", desc.Label),
		desc:   *desc,
		req:    d.newRequirements(uint64(desc.Width) * uint64(desc.Height) * texel),
	}
	return img, nil
}

func (d *Device) ImageMemoryRequirements(img hal.Image) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cast[*image](img).req
}

func (d *Device) BindImageMemory(img hal.Image, mem hal.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := cast[*image](img)
	m := cast[*memory](mem)
	if im.mem != nil {
		return fmt.Errorf("%w: %s is already bound", hal.ErrInvalidUsage, im)
	}
	if im.req.TypeBits&(1<<m.typ.Index) == 0 {
		return fmt.Errorf("%w: memory type %d not allowed for %s", hal.ErrInvalidUsage, m.typ.Index, im)
	}
	if offset+im.req.Size > uint64(len(m.data)) {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d", hal.ErrInvalidUsage, im, im.req.Size, offset)
	}
	im.mem, im.offset = m, offset
	return nil
}

func (d *Device) DestroyImage(img hal.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := cast[*image](img)
	if im.views > 0 {
		panic(fmt.Sprintf("soft: %s destroyed with %d live views", im, im.views))
	}
	retire(im)
}

func (d *Device) CreateImageView(desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im := cast[*image](desc.Image)
	if im.mem == nil {
		return nil, fmt.Errorf("%w: view of unbound %s", hal.ErrInvalidUsage, im)
	}
	if desc.BaseMipLevel+desc.LevelCount > 1 || desc.BaseArrayLayer+desc.LayerCount > 1 ||
		desc.LevelCount == 0 || desc.LayerCount == 0 {
		return nil, fmt.Errorf("%w: subresource range outside the single level and layer of %s",
			hal.ErrInvalidUsage, im)
	}
	if desc.Aspect == 0 {
		return nil, fmt.Errorf("%w: view without aspect", hal.ErrInvalidUsage)
	}
	im.views++
	return &imageView{handle: d.newHandle("image_view", im.label), img: im}, nil
}

func (d *Device) DestroyImageView(view hal.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := cast[*imageView](view)
	retire(v)
	v.img.views--
}

func (d *Device) WaitIdle() error {
	d.inflight.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return fmt.Errorf("%w: %v", hal.ErrDeviceLost, d.lost)
	}
	return nil
}

// Destroy stops the queue goroutine after pending submissions finish.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.mu.Unlock()
	d.Resume()
	close(d.queue)
	<-d.stopped
}
