// Package classify implements the weighted track classifier from
// a deterministic, pure function over a scanned
// track list that decides which title is the main feature and labels the
// rest (trailers, featurettes, deleted scenes, other, or an alternate main
// for a duplicate-language cut).
package classify
