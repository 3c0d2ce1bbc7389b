package hal

import "fmt"

type layoutPair struct {
	old, new ImageLayout
}

type transitionMasks struct {
	src, dst AccessFlags
}

// knownTransitions lists every layout change the renderer issues.
var knownTransitions = map[layoutPair]transitionMasks{
	// Storage images before a dispatch writes them.
	{ImageLayoutUndefined, ImageLayoutGeneral}: {AccessNone, AccessShaderWrite},
	// Output image before it is copied to the presentable image.
	{ImageLayoutGeneral, ImageLayoutTransferSrc}: {AccessShaderWrite, AccessTransferRead},
	// Presentable image before the copy.
	{ImageLayoutUndefined, ImageLayoutTransferDst}: {AccessNone, AccessTransferWrite},
	// Presentable image after the copy.
	{ImageLayoutTransferDst, ImageLayoutPresentSrc}: {AccessTransferWrite, AccessNone},
	// Texture uploads.
	{ImageLayoutTransferDst, ImageLayoutShaderReadOnly}: {AccessTransferWrite, AccessShaderRead},
	// Offscreen read back of a presented image.
	{ImageLayoutPresentSrc, ImageLayoutTransferSrc}: {AccessNone, AccessTransferRead},
	{ImageLayoutTransferSrc, ImageLayoutPresentSrc}: {AccessTransferRead, AccessNone},
	// Offscreen swap chain images start presentable.
	{ImageLayoutUndefined, ImageLayoutPresentSrc}: {AccessNone, AccessNone},
}

// Transition builds the barrier for an image layout change.
// It fails with ErrUnsupportedLayoutTransition for layout pairs the renderer
// does not use.
func Transition(img Image, oldLayout, newLayout ImageLayout) (ImageBarrier, error) {
	masks, ok := knownTransitions[layoutPair{oldLayout, newLayout}]
	if !ok {
		return ImageBarrier{}, fmt.Errorf("%w: %s -> %s", ErrUnsupportedLayoutTransition, oldLayout, newLayout)
	}
	return ImageBarrier{
		Image:     img,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcAccess: masks.src,
		DstAccess: masks.dst,
		SrcStages: StageAllCommands,
		DstStages: StageAllCommands,
	}, nil
}

// RecordTransition records a layout change on enc.
func RecordTransition(enc CommandEncoder, img Image, oldLayout, newLayout ImageLayout) error {
	b, err := Transition(img, oldLayout, newLayout)
	if err != nil {
		return err
	}
	enc.ImageBarrier(b)
	return nil
}

// AccelerationStructureBuildBarrier makes finished structure builds visible to
// later builds in the same command buffer.
func AccelerationStructureBuildBarrier() MemoryBarrier {
	return MemoryBarrier{
		SrcStages: StageAccelerationStructureBuild,
		DstStages: StageAccelerationStructureBuild,
		SrcAccess: AccessAccelerationStructureWrite | AccessAccelerationStructureRead,
		DstAccess: AccessAccelerationStructureWrite | AccessAccelerationStructureRead,
	}
}
