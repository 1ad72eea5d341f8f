// Package resource owns buffer, texture and sampler creation. Handles are plain pointers without reference
// counting; initial contents travel through the staging ring and the deferred queue.
package resource
