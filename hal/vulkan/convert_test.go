//go:build !(js && wasm)

package vulkan

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func TestBufferUsageToVk(t *testing.T) {
	got := bufferUsageToVk(hal.BufferUsageShaderDeviceAddress | hal.BufferUsageStorage)
	if got&bufferUsageShaderDeviceAddressBit == 0 {
		t.Error("device address bit missing")
	}
	if got&vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit) == 0 {
		t.Error("storage bit missing")
	}
	if got&vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) != 0 {
		t.Error("unexpected uniform bit")
	}
}

func TestStagesToVk(t *testing.T) {
	tests := []struct {
		name   string
		stages hal.PipelineStages
		want   vk.PipelineStageFlags
	}{
		{"empty", 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
		{"transfer", hal.StageTransfer, vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		{
			"build and trace",
			hal.StageAccelerationStructureBuild | hal.StageRayTracingShader,
			vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBitKhr) |
				vk.PipelineStageFlags(vk.PipelineStageRayTracingShaderBitKhr),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stagesToVk(tt.stages); got != tt.want {
				t.Errorf("stagesToVk(%v) = 0x%x, want 0x%x", tt.stages, got, tt.want)
			}
		})
	}
}

func TestImageLayoutToVk(t *testing.T) {
	tests := []struct {
		layout hal.ImageLayout
		want   vk.ImageLayout
	}{
		{hal.ImageLayoutUndefined, vk.ImageLayoutUndefined},
		{hal.ImageLayoutGeneral, vk.ImageLayoutGeneral},
		{hal.ImageLayoutTransferSrc, vk.ImageLayoutTransferSrcOptimal},
		{hal.ImageLayoutTransferDst, vk.ImageLayoutTransferDstOptimal},
		{hal.ImageLayoutShaderReadOnly, vk.ImageLayoutShaderReadOnlyOptimal},
		{hal.ImageLayoutPresentSrc, vk.ImageLayoutPresentSrcKhr},
		{hal.ImageLayout(200), vk.ImageLayoutUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.layout.String(), func(t *testing.T) {
			if got := imageLayoutToVk(tt.layout); got != tt.want {
				t.Errorf("imageLayoutToVk(%v) = %d, want %d", tt.layout, got, tt.want)
			}
		})
	}
}

func TestShaderStageToVk(t *testing.T) {
	if got := shaderStageToVk(hal.ShaderStageRaygen); got != vk.ShaderStageRaygenBitKhr {
		t.Errorf("raygen = %d", got)
	}
	if got := shaderStageToVk(hal.ShaderStageRaygen | hal.ShaderStageMiss); got != 0 {
		t.Errorf("combined mask = %d, want 0", got)
	}
	all := shaderStagesToVk(hal.ShaderStageRaygen | hal.ShaderStageClosestHit)
	if all != vk.ShaderStageFlags(vk.ShaderStageRaygenBitKhr)|vk.ShaderStageFlags(vk.ShaderStageClosestHitBitKhr) {
		t.Errorf("shaderStagesToVk = 0x%x", all)
	}
}

func TestFormatConversions(t *testing.T) {
	if got := textureFormatToVk(gputypes.TextureFormatRGBA32Float); got != vk.FormatR32g32b32a32Sfloat {
		t.Errorf("RGBA32Float = %d", got)
	}
	if got := vertexFormatToVk(gputypes.VertexFormatFloat32x3); got != vk.FormatR32g32b32Sfloat {
		t.Errorf("Float32x3 = %d", got)
	}
	if got := indexFormatToVk(gputypes.IndexFormatUint32); got != vk.IndexTypeUint32 {
		t.Errorf("Uint32 = %d", got)
	}
}

func TestBuildFlagsToVk(t *testing.T) {
	got := buildFlagsToVk(hal.BuildPreferFastTrace | hal.BuildAllowUpdate)
	want := vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructurePreferFastTraceBitKhr) |
		vk.BuildAccelerationStructureFlagsKHR(vk.BuildAccelerationStructureAllowUpdateBitKhr)
	if got != want {
		t.Errorf("buildFlagsToVk = 0x%x, want 0x%x", got, want)
	}
}

func TestVersionString(t *testing.T) {
	if got := versionString(vkMakeVersion(1, 3, 280)); got != "1.3.280" {
		t.Errorf("versionString = %q", got)
	}
}

func TestCStringToGo(t *testing.T) {
	var buf [16]byte
	copy(buf[:], "VK_KHR_x\x00junk")
	if got := cStringToGo(buf[:]); got != "VK_KHR_x" {
		t.Errorf("cStringToGo = %q", got)
	}
	if got := cStringToGo([]byte("abc")); got != "abc" {
		t.Errorf("unterminated = %q", got)
	}
}

func TestResultError(t *testing.T) {
	err := check("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	if !errors.Is(err, hal.ErrHardwareCall) {
		t.Fatalf("errors.Is(%v, ErrHardwareCall) = false", err)
	}
	var re *ResultError
	if !errors.As(err, &re) || re.Call != "vkCreateBuffer" {
		t.Fatalf("errors.As = %v", re)
	}
	want := "vulkan: vkCreateBuffer failed: VK_ERROR_OUT_OF_DEVICE_MEMORY (-2)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if check("vkQueuePresentKHR", vk.SuboptimalKhr) != nil {
		t.Error("positive status treated as failure")
	}
	if resultName(vk.Result(-12345)) != "VK_RESULT_UNKNOWN" {
		t.Error("unknown result name")
	}
}
