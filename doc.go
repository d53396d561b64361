// Package meshview is a minimal real-time 3D renderer.
//
// # Overview
//
// meshview owns a low-level graphics device, a double-buffered presentation
// surface and a command-submission pipeline. It uploads a static mesh once
// and redraws it every tick with a per-frame transform from an orbiting
// camera.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/meshview"
//		_ "github.com/gogpu/meshview/backend/native"
//		_ "github.com/gogpu/meshview/backend/soft"
//	)
//
//	r, err := meshview.New(meshview.Headless{Width: 800, Height: 600})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//
//	for running {
//		if err := r.Tick(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Architecture
//
// The renderer is organized into:
//   - Public API: Renderer, Surface, Option
//   - Internal: device (adapter, device, queue, fence), frame (the frame
//     ring), upload (staging transfers, constant buffer), record (the
//     per-frame command sequence)
//   - Collaborators: mesh, shader, timer, camera, config
//   - Backends: backend/native (gogpu/wgpu HAL), backend/soft (in-process)
//
// # Frame Pacing
//
// The ring holds N ≥ 2 swap images, one command allocator per image and a
// fence checkpoint per slot. The CPU records frame i+1 while the GPU renders
// frame i and never runs more than N frames ahead. Every fence wait is
// bounded; a wait that expires is treated like a removed device.
//
// # Device Loss
//
// When submission, presentation or a fence wait reports a lost device,
// [Renderer.Tick] tears down and rebuilds the device, the ring and every
// resource that depends on them, logs the fault at Warn level and keeps
// ticking. Fatal initialization failures are returned from [New].
package meshview
