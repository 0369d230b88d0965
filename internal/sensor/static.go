package sensor

import (
	"fmt"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// StaticSource is a FrameSource over fixed payloads.
// A nil payload makes the matching Open return no handle. Errors in OpenErr and
// CopyErr are returned from Open and Copy for that stream.
type StaticSource struct {
	Depth     *types.DepthPayload
	Color     *types.ColorPayload
	Skeletons *types.SkeletonPayload

	OpenErr map[Stream]error
	CopyErr map[Stream]error

	opened int
	closed int
}

// Opened returns how many handles were opened
func (s *StaticSource) Opened() int { return s.opened }

// Closed returns how many handles were closed
func (s *StaticSource) Closed() int { return s.closed }

func (s *StaticSource) open(stream Stream) (handle, error) {
	if err := s.OpenErr[stream]; err != nil {
		return handle{}, err
	}
	s.opened++
	return handle{src: s, copyErr: s.CopyErr[stream]}, nil
}

// OpenDepth implements FrameSource.
func (s *StaticSource) OpenDepth() (DepthFrame, error) {
	if s.Depth == nil {
		return nil, nil
	}
	h, err := s.open(StreamDepth)
	if err != nil {
		return nil, err
	}
	return &staticDepth{handle: h, p: s.Depth}, nil
}

// OpenColor implements FrameSource.
func (s *StaticSource) OpenColor() (ColorFrame, error) {
	if s.Color == nil {
		return nil, nil
	}
	h, err := s.open(StreamColor)
	if err != nil {
		return nil, err
	}
	return &staticColor{handle: h, p: s.Color}, nil
}

// OpenSkeleton implements FrameSource.
func (s *StaticSource) OpenSkeleton() (SkeletonFrame, error) {
	if s.Skeletons == nil {
		return nil, nil
	}
	h, err := s.open(StreamSkeleton)
	if err != nil {
		return nil, err
	}
	return &staticSkeleton{handle: h, p: s.Skeletons}, nil
}

// handle tracks the open/closed state of one frame
type handle struct {
	src     *StaticSource
	copyErr error
	closed  bool
}

func (h *handle) beginCopy(have, want int) error {
	if h.closed {
		return fmt.Errorf("frame already closed: %w", ErrInvalidState)
	}
	if h.copyErr != nil {
		return h.copyErr
	}
	if have < want {
		return fmt.Errorf("buffer too small: %d < %d", have, want)
	}
	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.src.closed++
	return nil
}

type staticDepth struct {
	handle
	p *types.DepthPayload
}

func (f *staticDepth) Width() int           { return f.p.Width }
func (f *staticDepth) Height() int          { return f.p.Height }
func (f *staticDepth) Timestamp() int64     { return f.p.Timestamp }
func (f *staticDepth) PixelDataLength() int { return len(f.p.Pixels) }

func (f *staticDepth) CopyPixelDataTo(dst []uint16) error {
	if err := f.beginCopy(len(dst), len(f.p.Pixels)); err != nil {
		return err
	}
	copy(dst, f.p.Pixels)
	return nil
}

type staticColor struct {
	handle
	p *types.ColorPayload
}

func (f *staticColor) Width() int           { return f.p.Width }
func (f *staticColor) Height() int          { return f.p.Height }
func (f *staticColor) Timestamp() int64     { return f.p.Timestamp }
func (f *staticColor) PixelDataLength() int { return len(f.p.Pixels) }

func (f *staticColor) CopyPixelDataTo(dst []byte) error {
	if err := f.beginCopy(len(dst), len(f.p.Pixels)); err != nil {
		return err
	}
	copy(dst, f.p.Pixels)
	return nil
}

type staticSkeleton struct {
	handle
	p *types.SkeletonPayload
}

func (f *staticSkeleton) Timestamp() int64         { return f.p.Timestamp }
func (f *staticSkeleton) SkeletonArrayLength() int { return len(f.p.Skeletons) }

func (f *staticSkeleton) CopySkeletonDataTo(dst []types.Skeleton) error {
	if err := f.beginCopy(len(dst), len(f.p.Skeletons)); err != nil {
		return err
	}
	copy(dst, f.p.Skeletons)
	return nil
}
