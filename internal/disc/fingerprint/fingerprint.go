package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var errMountNotFound = errors.New("optical drive mount point not found")

// Medium is the disc kind driving which fingerprint algorithm applies.
type Medium string

const (
	MediumDVD    Medium = "dvd"
	MediumBluRay Medium = "bluray"
	MediumUHD    Medium = "uhd"
	MediumCD     Medium = "cd"
)

// Compute returns the hex-encoded SHA-256 fingerprint for the disc mounted
// at mountPath, hashing a fixed per-medium byte sequence:
// an ascii "type:" tag, an optional ascii "volume:" tag, then for each
// required file (sorted lexicographically by name) an ascii "file:<name>"
// tag followed by the file's raw bytes.
func Compute(ctx context.Context, mountPath string, medium Medium, volumeName string) (string, error) {
	if mountPath == "" {
		return "", errors.New("fingerprint: mount path required")
	}
	h := sha256.New()

	switch medium {
	case MediumDVD:
		writeTag(h, "type:dvd")
		writeVolume(h, volumeName)
		if err := hashDirFiles(ctx, h, filepath.Join(mountPath, "VIDEO_TS"), ".IFO"); err != nil {
			return "", err
		}
	case MediumBluRay, MediumUHD:
		writeTag(h, "type:bluray")
		writeVolume(h, volumeName)
		if err := hashDirFiles(ctx, h, filepath.Join(mountPath, "BDMV", "PLAYLIST"), ".MPLS"); err != nil {
			return "", err
		}
	case MediumCD:
		writeTag(h, "type:cd")
		if strings.TrimSpace(volumeName) != "" {
			writeTag(h, "cd_volume:"+volumeName)
		} else {
			writeTag(h, "cd_unknown")
		}
	default:
		return "", fmt.Errorf("fingerprint: unsupported medium %q", medium)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeTag(h hash.Hash, tag string) {
	_, _ = io.WriteString(h, tag)
}

func writeVolume(h hash.Hash, volumeName string) {
	if strings.TrimSpace(volumeName) != "" {
		writeTag(h, "volume:"+volumeName)
	}
}

// hashDirFiles lists every file under dir whose extension matches ext
// (case-insensitively), sorts the names lexicographically, and for each one
// writes an ascii "file:<name>" tag followed by the file's raw,
// uncapped bytes. It fails if dir does not exist or no matching file is
// found ("Fails if the expected directory or any required files
// are missing").
func hashDirFiles(ctx context.Context, h hash.Hash, dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("fingerprint: read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("fingerprint: no %s files under %s", ext, dir)
	}
	sort.Strings(names)

	for _, name := range names {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		writeTag(h, "file:"+name)
		if err := appendRawFile(h, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// appendRawFile writes the complete, uncapped contents of path into h. Per
// the fingerprinted file sets (VIDEO_TS/*.IFO, BDMV/PLAYLIST/*.mpls)
// are small navigation structures, not video payloads, so reading them in
// full stays fast even on slow optical mounts.
func appendRawFile(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("fingerprint: read %s: %w", path, err)
	}
	return nil
}

// ClassifyMedium guesses the disc medium from a directory-structure probe,
// falling back to an explicit hint (e.g. configured by the user or reported
// by the OS) and finally to MediumCD when neither BDMV nor VIDEO_TS exists.
func ClassifyMedium(mountPoint, hint string) Medium {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "uhd", "4k", "uhd blu-ray", "uhd-bluray":
		return MediumUHD
	case "blu-ray", "blu ray", "blu-ray disc", "bd", "bluray":
		return MediumBluRay
	case "dvd":
		return MediumDVD
	case "cd", "audio cd":
		return MediumCD
	}

	if hasDir(mountPoint, "BDMV") {
		return MediumBluRay
	}
	if hasDir(mountPoint, "VIDEO_TS") {
		return MediumDVD
	}
	return MediumCD
}

func hasDir(base, name string) bool {
	info, err := os.Stat(filepath.Join(base, name))
	return err == nil && info.IsDir()
}

// ComputeTimeout wraps Compute with a deadline to avoid blocking
// indefinitely on a slow or failing drive. The default timeout is 30
// seconds, generous for navigation-file reads on healthy media.
func ComputeTimeout(ctx context.Context, mountPath string, medium Medium, volumeName string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return Compute(ctx, mountPath, medium, volumeName)
}
