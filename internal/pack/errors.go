// Package pack reduces the meshes of a decoded avatar scene and rewrites its
// binary buffers so every remaining reference stays byte-consistent.
//
// The work happens in four stages: Extract copies each primitive's geometry
// into a MeshRecord, ReduceAll shrinks the index lists, Repack writes them
// back and compacts the touched buffers, and Assemble frames the result as a
// binary container.
package pack

import "errors"

// Pipeline errors. Codec failures surface as scene.ErrParse and
// scene.ErrBufferLoad.
var (
	// ErrMalformedAsset reports a primitive that cannot be reduced safely
	// because required data is missing or unreadable.
	ErrMalformedAsset = errors.New("malformed asset")

	// ErrLayoutInvariant reports a violated buffer layout precondition,
	// such as an index region that would grow.
	ErrLayoutInvariant = errors.New("layout invariant violation")
)
