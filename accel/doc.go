// Package accel builds the two-level acceleration structure of a scene.
//
// A scene is indexed by one bottom-level structure (BLAS) per model and a
// single top-level structure (TLAS) that instances every BLAS:
//
//	GeometryDescriptor ──► BottomLevel ─┐
//	GeometryDescriptor ──► BottomLevel ─┼─► Instance records ──► TopLevel
//	GeometryDescriptor ──► BottomLevel ─┘
//
// Structures are constructed in two steps. Construction only describes the
// geometry and queries the build sizes, so buffers can be sized before any
// allocation. Generate then creates the structure inside a caller-provided
// result buffer and records the build command.
//
// [Builder] sequences a whole scene: all BLAS builds, one memory barrier, the
// TLAS build, in a single blocking one-time submission. There is no refit
// path; a changed scene is deleted and built again.
package accel
