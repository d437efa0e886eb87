// Package resume implements the resume reconciler:
// given a track's recorded path slots, it inspects disk state and decides
// which pipeline stages (rip, transcode, insert) still need to run, so the
// task producer can skip stages a prior run already completed.
package resume
