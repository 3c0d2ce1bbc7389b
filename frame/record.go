package frame

import (
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/rtpipeline"
)

// RecordRayTracedFrame records one ray-traced frame into presentable image
// imageIndex, using descriptor set imageIndex of p.
func RecordRayTracedFrame(enc hal.CommandEncoder, p *rtpipeline.Pipeline, sbt *rtpipeline.ShaderBindingTable, res *Resources, imageIndex uint32) error {
	if err := hal.RecordTransition(enc, res.accumulation, hal.ImageLayoutUndefined, hal.ImageLayoutGeneral); err != nil {
		return err
	}
	if err := hal.RecordTransition(enc, res.output, hal.ImageLayoutUndefined, hal.ImageLayoutGeneral); err != nil {
		return err
	}

	enc.BindPipeline(hal.BindPointRayTracing, p.Handle())
	enc.BindDescriptorSet(hal.BindPointRayTracing, p.Layout(), p.DescriptorSet(int(imageIndex)))

	raygen, miss, hit, callable := sbt.Regions()
	enc.TraceRays(raygen, miss, hit, callable, res.extent.Width, res.extent.Height, 1)

	return RecordPresentCopy(enc, res, imageIndex)
}

// RecordPresentCopy copies the output image, which must be in General
// layout, into presentable image imageIndex and leaves that image ready to
// present.
func RecordPresentCopy(enc hal.CommandEncoder, res *Resources, imageIndex uint32) error {
	target := res.SwapChainImage(imageIndex)
	if err := hal.RecordTransition(enc, res.output, hal.ImageLayoutGeneral, hal.ImageLayoutTransferSrc); err != nil {
		return err
	}
	if err := hal.RecordTransition(enc, target, hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst); err != nil {
		return err
	}
	enc.CopyImage(res.output, hal.ImageLayoutTransferSrc, target, hal.ImageLayoutTransferDst, res.extent)
	return hal.RecordTransition(enc, target, hal.ImageLayoutTransferDst, hal.ImageLayoutPresentSrc)
}
