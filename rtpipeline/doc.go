// Package rtpipeline creates the ray-tracing pipeline, its descriptor sets
// and the shader binding table.
//
// The pipeline has five stages grouped into four shader groups:
//
//	group 0  raygen
//	group 1  miss
//	group 2  triangle hit group       (closest hit)
//	group 3  procedural hit group     (closest hit + intersection)
//
// The shader binding table stores one record per group in three regions,
// raygen first, then miss, then hit groups. An instance selects its hit group
// through the SBT offset written into its top-level instance record.
package rtpipeline
