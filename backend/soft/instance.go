// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// Default adapters reported by a new Instance: one simulated hardware
// adapter followed by the software rasterizer.
var (
	HardwareAdapter = gpucore.AdapterInfo{
		Name:         "Soft Simulated GPU",
		Type:         gpucore.AdapterDiscrete,
		LUID:         0x1001,
		FeatureLevel: gpucore.FeatureLevel12_0,
	}
	SoftwareAdapter = gpucore.AdapterInfo{
		Name:         "Soft Rasterizer",
		Type:         gpucore.AdapterSoftware,
		LUID:         0x2001,
		FeatureLevel: gpucore.FeatureLevel11_0,
	}
)

// Option configures an Instance.
type Option func(*Instance)

// WithAdapters replaces the default adapter list.
func WithAdapters(infos ...gpucore.AdapterInfo) Option {
	return func(in *Instance) {
		in.infos = append([]gpucore.AdapterInfo(nil), infos...)
	}
}

// WithEagerGPU makes the simulated GPU execute every submission and signal
// as soon as it is queued. By default work runs only when a fence wait
// needs it, so frames stay in flight as long as the caller allows.
func WithEagerGPU() Option {
	return func(in *Instance) {
		in.eager = true
	}
}

// Instance is a software gpucore.Instance. Resource counters, the event log
// and fault injection live on the instance so that they survive device
// recreation.
type Instance struct {
	mu     sync.Mutex
	infos  []gpucore.AdapterInfo
	eager  bool
	live   Counts
	events []Event
	draws  []Draw

	presentFault error
	stalled      bool

	inFlight    int
	maxInFlight int

	destroyed bool
}

// New creates a software instance.
func New(opts ...Option) *Instance {
	in := &Instance{
		infos: []gpucore.AdapterInfo{HardwareAdapter, SoftwareAdapter},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Adapters returns the configured adapters.
func (in *Instance) Adapters() ([]gpucore.Adapter, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.destroyed {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "soft: instance destroyed")
	}
	out := make([]gpucore.Adapter, len(in.infos))
	for i, info := range in.infos {
		out[i] = &adapter{inst: in, info: info}
	}
	return out, nil
}

// SetAdapters replaces the adapter list, simulating a driver update or an
// adapter being unplugged.
func (in *Instance) SetAdapters(infos ...gpucore.AdapterInfo) {
	in.mu.Lock()
	in.infos = append([]gpucore.AdapterInfo(nil), infos...)
	in.mu.Unlock()
}

// Destroy releases the instance.
func (in *Instance) Destroy() {
	in.mu.Lock()
	in.destroyed = true
	in.mu.Unlock()
}

// InjectPresentFault makes the next Present on any device fail with err
// and removes that device. err is marked device-lost.
func (in *Instance) InjectPresentFault(err error) {
	in.mu.Lock()
	in.presentFault = err
	in.mu.Unlock()
}

// StallFences stops the simulated GPU. Waits time out immediately instead
// of sleeping for their full timeout.
func (in *Instance) StallFences(stalled bool) {
	in.mu.Lock()
	in.stalled = stalled
	in.mu.Unlock()
}

// Live returns the counts of resources currently alive.
func (in *Instance) Live() Counts {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.live
}

// Events returns a copy of the event log.
func (in *Instance) Events() []Event {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Event(nil), in.events...)
}

// ResetEvents clears the event log.
func (in *Instance) ResetEvents() {
	in.mu.Lock()
	in.events = in.events[:0]
	in.mu.Unlock()
}

// Draws returns every draw the simulated GPU executed, in execution order.
func (in *Instance) Draws() []Draw {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Draw(nil), in.draws...)
}

// MaxInFlight returns the highest number of allocators that were recording
// or had incomplete submitted work at the same time.
func (in *Instance) MaxInFlight() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.maxInFlight
}

func (in *Instance) record(e Event) {
	in.mu.Lock()
	in.events = append(in.events, e)
	in.mu.Unlock()
}

func (in *Instance) count(kind resourceKind, delta int) {
	in.mu.Lock()
	in.live.add(kind, delta)
	in.mu.Unlock()
}

func (in *Instance) busy(delta int) {
	in.mu.Lock()
	in.inFlight += delta
	if in.inFlight > in.maxInFlight {
		in.maxInFlight = in.inFlight
	}
	in.mu.Unlock()
}

func (in *Instance) takePresentFault() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	err := in.presentFault
	in.presentFault = nil
	return err
}

func (in *Instance) isStalled() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stalled
}

type adapter struct {
	inst *Instance
	info gpucore.AdapterInfo
}

func (a *adapter) Info() gpucore.AdapterInfo { return a.info }

func (a *adapter) Open(level gpucore.FeatureLevel) (gpucore.Device, error) {
	if a.info.FeatureLevel < level {
		return nil, errors.Newf("soft: adapter %q supports feature level %#x, need %#x",
			a.info.Name, uint16(a.info.FeatureLevel), uint16(level))
	}
	return newDevice(a.inst, a.info), nil
}
