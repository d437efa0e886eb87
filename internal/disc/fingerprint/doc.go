// Fingerprinting strategies by medium:
// - dvd: hashes every VIDEO_TS/*.IFO file, sorted by name
// - bluray / uhd: hashes every BDMV/PLAYLIST/*.mpls file, sorted by name
// - cd: no navigation files to hash; falls back to a volume-name tag
//
// This package has no amphigory-specific dependencies and could be
// extracted as a standalone library.
package fingerprint
