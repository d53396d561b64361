package soft

import "fmt"

type resourceKind uint8

const (
	kindDevice resourceKind = iota
	kindBuffer
	kindTexture
	kindFence
	kindAllocator
	kindList
	kindPipeline
	kindBindGroup
	kindSwapchain
)

// Counts is the number of live resources per kind.
type Counts struct {
	Devices    int
	Buffers    int
	Textures   int
	Fences     int
	Allocators int
	Lists      int
	Pipelines  int
	BindGroups int
	Swapchains int
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	return c.Devices + c.Buffers + c.Textures + c.Fences + c.Allocators +
		c.Lists + c.Pipelines + c.BindGroups + c.Swapchains
}

func (c Counts) String() string {
	return fmt.Sprintf("devices=%d buffers=%d textures=%d fences=%d allocators=%d lists=%d pipelines=%d bindgroups=%d swapchains=%d",
		c.Devices, c.Buffers, c.Textures, c.Fences, c.Allocators, c.Lists, c.Pipelines, c.BindGroups, c.Swapchains)
}

func (c *Counts) add(kind resourceKind, delta int) {
	switch kind {
	case kindDevice:
		c.Devices += delta
	case kindBuffer:
		c.Buffers += delta
	case kindTexture:
		c.Textures += delta
	case kindFence:
		c.Fences += delta
	case kindAllocator:
		c.Allocators += delta
	case kindList:
		c.Lists += delta
	case kindPipeline:
		c.Pipelines += delta
	case kindBindGroup:
		c.BindGroups += delta
	case kindSwapchain:
		c.Swapchains += delta
	}
}

// EventKind identifies an entry in the event log.
type EventKind uint8

// Event kinds.
const (
	EventSubmit EventKind = iota + 1
	EventSignal
	EventWait
	EventComplete
	EventResetAllocator
	EventPresent
	EventResize
	EventCreateSwapchain
	EventCreateDepth
	EventDraw
	EventDeviceRemoved
)

var eventNames = [...]string{
	EventSubmit:          "submit",
	EventSignal:          "signal",
	EventWait:            "wait",
	EventComplete:        "complete",
	EventResetAllocator:  "reset-allocator",
	EventPresent:         "present",
	EventResize:          "resize",
	EventCreateSwapchain: "create-swapchain",
	EventCreateDepth:     "create-depth",
	EventDraw:            "draw",
	EventDeviceRemoved:   "device-removed",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) && eventNames[k] != "" {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// Event is one entry of the instance event log.
//
// Value is the fence value for signal, wait and complete events, the
// allocator ID for reset-allocator, and the image index for present.
// Completed is the fence's completed value when the event was logged.
type Event struct {
	Kind          EventKind
	Value         uint64
	Completed     uint64
	Width, Height int
}

func (e Event) String() string {
	switch e.Kind {
	case EventResize, EventCreateSwapchain, EventCreateDepth, EventDraw:
		return fmt.Sprintf("%s %dx%d", e.Kind, e.Width, e.Height)
	default:
		return fmt.Sprintf("%s %d (completed %d)", e.Kind, e.Value, e.Completed)
	}
}

// Draw is an executed indexed draw.
type Draw struct {
	IndexCount uint32
	Viewport   [2]float32
	// Constants is a snapshot of the bound constant buffer taken when the
	// draw executed on the simulated GPU timeline.
	Constants []byte
}
