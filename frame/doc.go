// Package frame owns everything that depends on the swap chain and drives
// the per-frame ray dispatch.
//
// Resources is the swap-chain-dependent arena: the accumulation image, the
// output image and one uniform buffer per presentable image. Loop waits for a
// free frame in flight, acquires an image, writes its uniform buffer, records
// the frame through a Renderer and presents it. A suboptimal or out-of-date
// swap chain makes Loop wait for the device, rebuild the arena and skip the
// frame.
//
// The recorded ray-traced frame is:
//
//	accumulation, output   Undefined   -> General
//	bind pipeline and descriptor set [image]
//	trace rays             width x height x 1
//	output                 General     -> TransferSrc
//	presentable            Undefined   -> TransferDst
//	copy output -> presentable
//	presentable            TransferDst -> PresentSrc
package frame
