// Package scene holds the models, materials and textures rendered by the
// ray tracer and uploads them into one set of concatenated GPU buffers.
//
// A scene is produced by a [Generator] looked up in a [Registry]. Generators
// return plain host data ([Model] and [Texture] values); [Load] turns that
// data into a [Scene], the arena owning every GPU resource of the scene.
// Destroying the Scene releases them all.
//
// # Buffer layout
//
// Model i occupies a contiguous range of every concatenated buffer:
//
//	Vertices     36 bytes per vertex, material indices shifted to the scene material list
//	Indices      uint32, relative to the first vertex of the model
//	Materials    32 bytes per material
//	Offsets      uvec2 {first index, first vertex} per model
//	AABBs        24 bytes per model, zero for triangle models
//	Procedurals  vec4 {center, radius} per model, zero for triangle models
//
// The hit shaders recover a model's ranges from the instance index through
// the offsets buffer.
package scene
