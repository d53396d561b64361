// Package soft provides an in-process gpucore device.
//
// The software device executes copies and clears on a simulated GPU
// timeline, tracks resource states at record time and rejects misuse
// (resetting an allocator whose work has not executed, resizing a swapchain
// with work in flight, presenting an image that is still a render target).
//
// It serves two roles: the software rasterizer adapter used as a debug
// fallback when no hardware adapter qualifies, and the test double for the
// frame-pacing protocol. For the latter the [Instance] exposes live
// resource counts, an event log, executed draws and fault injection:
//
//	inst := soft.New()
//	inst.InjectPresentFault(errors.New("TDR"))
//	...
//	if live := inst.Live(); live.Buffers != 0 {
//		t.Errorf("leaked buffers: %v", live)
//	}
//
// The simulated GPU is lazy by default: submitted work runs only when a
// fence wait needs it, which keeps frames in flight for as long as the
// caller's pacing allows.
package soft
