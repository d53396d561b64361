// Package backend provides the registry of gpucore device backends.
//
// Backends register a [Factory] from an init() function and are selected at
// runtime by name:
//
//	import (
//		_ "github.com/gogpu/meshview/backend/native"
//		_ "github.com/gogpu/meshview/backend/soft"
//	)
//
//	inst, err := backend.Open(backend.BackendAuto, false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Destroy()
//
// # Backend Selection
//
// [BackendAuto] tries [BackendNative] first and falls back to [BackendSoft].
// Adapter selection inside the chosen instance is done by the device
// context, which skips software adapters unless debug mode is on.
package backend
