package native

import (
	"unicode/utf8"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshview/shader"
)

// shaderSource classifies a precompiled blob. Little-endian SPIR-V is
// passed as words; anything else must be WGSL text.
func shaderSource(blob []byte) (hal.ShaderSource, error) {
	if shader.IsSPIRV(blob) {
		words, err := shader.Words(blob)
		if err != nil {
			return hal.ShaderSource{}, ErrShaderBlob
		}
		return hal.ShaderSource{SPIRV: words}, nil
	}
	if len(blob) == 0 || !utf8.Valid(blob) {
		return hal.ShaderSource{}, ErrShaderBlob
	}
	return hal.ShaderSource{WGSL: string(blob)}, nil
}
