// Package hwcodec exchanges compressed and raw media buffers with an
// asynchronous hardware codec component.
//
// The component (see package component) is an opaque, externally-scheduled
// peer: it owns fixed pools of input and output buffer slots and consumes or
// produces them on its own schedule. This package implements the application
// side of the slot protocol:
//
//   - the submission path acquires a free input slot with a bounded wait,
//     copies the payload in and queues it with a timestamp and control flags;
//   - the retrieval path polls the output queue, absorbs informational
//     notifications (format changes, pool reallocations) and wraps ready
//     slots into zero-copy, reference-counted Buffer objects;
//   - dropping the last reference to a Buffer recycles its slot into the
//     component's free pool, from whatever goroutine that happens on.
//
// Decode and encode are mirror-image instances of the same protocol, driven
// through one generic Pipeline parameterized by a Descriptor.
package hwcodec
