// Package dumbfb allocates kernel dumb buffers and adapts them to the
// presentation path's importer interface. It gives kmsctl a CPU-filled
// pixel source on any KMS device without touching a GPU allocator.
package dumbfb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/present"
)

// Buffer is one mapped dumb buffer, presentable as an XRGB8888 frame.
// It implements present.Buffer; its key is the kernel buffer handle.
type Buffer struct {
	handle uint32
	width  uint32
	height uint32
	pitch  uint32
	data   []byte
}

// Key implements present.Buffer.
func (b *Buffer) Key() uint64 { return uint64(b.handle) }

// Handle returns the kernel buffer handle.
func (b *Buffer) Handle() uint32 { return b.handle }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() uint32 { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() uint32 { return b.height }

// Fill paints the whole buffer with one 0xRRGGBB color. XRGB8888 is
// little-endian in memory, so each pixel is stored B, G, R, X.
func (b *Buffer) Fill(rgb uint32) {
	for y := uint32(0); y < b.height; y++ {
		row := b.data[y*b.pitch:]
		for x := uint32(0); x < b.width; x++ {
			o := x * 4
			row[o] = byte(rgb)
			row[o+1] = byte(rgb >> 8)
			row[o+2] = byte(rgb >> 16)
			row[o+3] = 0
		}
	}
}

// Importer allocates dumb buffers and imports them as kernel
// framebuffers on demand. It implements present.Importer, so it can be
// handed straight to the display manager; the manager's import cache
// then decides when framebuffers are created and dropped.
//
// The importer owns every buffer it allocates. Close destroys them
// all, so callers may abandon buffers (after a mode change, say)
// without tracking them individually.
type Importer struct {
	dev kms.Device

	mu        sync.Mutex
	allocated []*Buffer
}

// New returns an importer allocating from dev.
func New(dev kms.Device) *Importer {
	return &Importer{dev: dev}
}

// Allocate returns a mapped 32-bit buffer of the given size.
func (i *Importer) Allocate(width, height uint32) (*Buffer, error) {
	db, err := i.dev.CreateDumbBuffer(width, height, 32)
	if err != nil {
		return nil, fmt.Errorf("dumbfb: create %dx%d buffer: %w", width, height, err)
	}
	data, err := i.dev.MapDumbBuffer(db)
	if err != nil {
		_ = i.dev.DestroyDumbBuffer(db.Handle)
		return nil, fmt.Errorf("dumbfb: map buffer %d: %w", db.Handle, err)
	}
	b := &Buffer{
		handle: db.Handle,
		width:  width,
		height: height,
		pitch:  db.Pitch,
		data:   data,
	}
	i.mu.Lock()
	i.allocated = append(i.allocated, b)
	i.mu.Unlock()
	return b, nil
}

// ImportBuffer implements present.Importer. It accepts only buffers
// from this package.
func (i *Importer) ImportBuffer(buf present.Buffer) (*present.Framebuffer, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("dumbfb: cannot import %T", buf)
	}
	info := &kms.FramebufferInfo{
		Width:  b.width,
		Height: b.height,
		Format: kms.FormatXRGB8888,
	}
	info.Handles[0] = b.handle
	info.Pitches[0] = b.pitch
	id, err := i.dev.AddFramebuffer(info)
	if err != nil {
		return nil, fmt.Errorf("dumbfb: add framebuffer: %w", err)
	}
	return &present.Framebuffer{
		FBID:    id,
		Width:   b.width,
		Height:  b.height,
		Format:  uint32(kms.FormatXRGB8888),
		Handles: info.Handles,
		Pitches: info.Pitches,
		Source:  buf,
	}, nil
}

// ReleaseBuffer implements present.Importer. Only the kernel
// framebuffer is dropped; the dumb buffer stays alive for reuse.
func (i *Importer) ReleaseBuffer(fb *present.Framebuffer) error {
	return i.dev.RemoveFramebuffer(fb.FBID)
}

// Close destroys every buffer the importer allocated. The importer
// must not be used afterwards.
func (i *Importer) Close() error {
	i.mu.Lock()
	bufs := i.allocated
	i.allocated = nil
	i.mu.Unlock()
	var errs []error
	for _, b := range bufs {
		if err := i.dev.DestroyDumbBuffer(b.handle); err != nil {
			errs = append(errs, fmt.Errorf("dumbfb: destroy buffer %d: %w", b.handle, err))
		}
	}
	return errors.Join(errs...)
}
