package shader

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
)

// SkyWGSL paints the sky gradient into the output image. It is the whole
// render when ray tracing is disabled.
//
//go:embed sky.wgsl
var SkyWGSL string

// SkyEntryPoint is the compute entry point of SkyWGSL.
const SkyEntryPoint = "main"

// SkyWorkgroupSize is the workgroup edge length of SkyWGSL.
const SkyWorkgroupSize = 8

// CompileWGSL compiles WGSL source to SPIR-V words. Results are kept in
// [ModuleCache], so recreating a pipeline does not run naga again.
func CompileWGSL(source string) ([]uint32, error) {
	return modules.GetOrCreate(Key("wgsl", source), func() ([]uint32, error) {
		spirvBytes, err := naga.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("shader: failed to compile WGSL: %w", err)
		}
		return DecodeSPIRV(spirvBytes)
	})
}
