package meshview

import "fmt"

// Rotation is the orientation of the output relative to the display's
// native orientation, in degrees clockwise.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Swaps reports whether the rotation exchanges width and height.
func (r Rotation) Swaps() bool {
	return r == Rotate90 || r == Rotate270
}

func (r Rotation) String() string {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return fmt.Sprintf("%d°", int(r))
	default:
		return fmt.Sprintf("Rotation(%d)", int(r))
	}
}

// Surface is the window or output the renderer presents to. Hosts push
// later size and rotation changes through Renderer.OnWindowSizeChanged.
type Surface interface {
	// Handle returns the native window handle, or 0 for offscreen output.
	Handle() uintptr
	// Size returns the output size in pixels.
	Size() (width, height int)
	Rotation() Rotation
}

// Headless is an offscreen Surface of a fixed size.
type Headless struct {
	Width, Height int
}

// Handle returns 0.
func (Headless) Handle() uintptr { return 0 }

// Size returns the configured size.
func (h Headless) Size() (int, int) { return h.Width, h.Height }

// Rotation returns Rotate0.
func (Headless) Rotation() Rotation { return Rotate0 }

// backBufferSize clamps the output size to at least 1x1 and applies the
// rotation.
func backBufferSize(width, height int, rot Rotation) (int, int) {
	width, height = max(width, 1), max(height, 1)
	if rot.Swaps() {
		return height, width
	}
	return width, height
}
