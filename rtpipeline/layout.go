package rtpipeline

import (
	"fmt"

	"github.com/gogpu/raytrace/hal"
)

// Descriptor bindings of set 0.
const (
	BindingTopLevel       = 0
	BindingAccumulation   = 1
	BindingOutput         = 2
	BindingUniform        = 3
	BindingVertices       = 4
	BindingIndices        = 5
	BindingMaterials      = 6
	BindingOffsets        = 7
	BindingTextures       = 8
	BindingProceduralData = 9
)

// LayoutBindings returns the bindings of the descriptor set layout. The
// procedural binding is declared only when the scene has procedural models.
func LayoutBindings(textureCount int, hasProcedurals bool) []hal.DescriptorBinding {
	closestHit := hal.ShaderStageClosestHit
	bindings := []hal.DescriptorBinding{
		{Binding: BindingTopLevel, Type: hal.DescriptorTypeAccelerationStructure, Count: 1, Stages: hal.ShaderStageRaygen},
		{Binding: BindingAccumulation, Type: hal.DescriptorTypeStorageImage, Count: 1, Stages: hal.ShaderStageRaygen},
		{Binding: BindingOutput, Type: hal.DescriptorTypeStorageImage, Count: 1, Stages: hal.ShaderStageRaygen},
		{Binding: BindingUniform, Type: hal.DescriptorTypeUniformBuffer, Count: 1, Stages: hal.ShaderStageRaygen | hal.ShaderStageMiss},
		{Binding: BindingVertices, Type: hal.DescriptorTypeStorageBuffer, Count: 1, Stages: closestHit},
		{Binding: BindingIndices, Type: hal.DescriptorTypeStorageBuffer, Count: 1, Stages: closestHit},
		{Binding: BindingMaterials, Type: hal.DescriptorTypeStorageBuffer, Count: 1, Stages: closestHit},
		{Binding: BindingOffsets, Type: hal.DescriptorTypeStorageBuffer, Count: 1, Stages: closestHit},
		{Binding: BindingTextures, Type: hal.DescriptorTypeCombinedImageSampler, Count: uint32(textureCount), Stages: closestHit},
	}
	if hasProcedurals {
		bindings = append(bindings, hal.DescriptorBinding{
			Binding: BindingProceduralData,
			Type:    hal.DescriptorTypeStorageBuffer,
			Count:   1,
			Stages:  closestHit | hal.ShaderStageIntersection,
		})
	}
	return bindings
}

// checkWrites verifies that every write targets a declared binding.
func checkWrites(bindings []hal.DescriptorBinding, writes []hal.DescriptorWrite) error {
	declared := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		declared[b.Binding] = true
	}
	for _, w := range writes {
		if !declared[w.Binding] {
			return fmt.Errorf("%w: binding %d", hal.ErrMissingDescriptorBinding, w.Binding)
		}
	}
	return nil
}
