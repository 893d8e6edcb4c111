package unionfs

import (
	"fmt"
	"strings"
)

// BranchKind tags one half of a branch_spec pair.
type BranchKind int

const (
	// KindUnspecified means the caller did not tag this branch; its kind
	// is inferred from the other half of the pair per ParseBranchSpec.
	KindUnspecified BranchKind = iota
	KindReadOnly
	KindReadWrite
)

// MountConfig is the configuration record consumed by an external mount
// adaptor (CLI flag parsing, a FUSE front-end, ...). New does not take a
// MountConfig: the adaptor builds the two branches from ROPath/RWPath and
// passes them to New as options. It mirrors the branch_spec mount option of the
// source this design distills: a pair of absolute paths, each optionally
// tagged `type=RO` / `type=RW`.
type MountConfig struct {
	ROPath string
	RWPath string
}

// ParseBranchSpec parses a "(A, B)" branch_spec pair into a MountConfig.
// Each side is "path" or "path=RO"/"path=RW" (case-insensitive). Exactly
// one RW and one RO branch must result:
//   - both tagged: tags must be distinct
//   - one tagged: the other defaults to the remaining kind
//   - neither tagged: A is RO and B is RW
//
// Relative branch paths are rejected; trailing slashes are stripped.
func ParseBranchSpec(a, b string) (MountConfig, error) {
	aPath, aKind, err := parseBranchTag(a)
	if err != nil {
		return MountConfig{}, err
	}
	bPath, bKind, err := parseBranchTag(b)
	if err != nil {
		return MountConfig{}, err
	}

	switch {
	case aKind == KindUnspecified && bKind == KindUnspecified:
		return MountConfig{ROPath: aPath, RWPath: bPath}, nil
	case aKind != KindUnspecified && bKind != KindUnspecified:
		if aKind == bKind {
			return MountConfig{}, fmt.Errorf("branch_spec: both branches tagged the same kind: %w", ErrInvalid)
		}
		if aKind == KindReadOnly {
			return MountConfig{ROPath: aPath, RWPath: bPath}, nil
		}
		return MountConfig{ROPath: bPath, RWPath: aPath}, nil
	case aKind != KindUnspecified:
		if aKind == KindReadOnly {
			return MountConfig{ROPath: aPath, RWPath: bPath}, nil
		}
		return MountConfig{ROPath: bPath, RWPath: aPath}, nil
	default: // bKind != KindUnspecified
		if bKind == KindReadOnly {
			return MountConfig{ROPath: bPath, RWPath: aPath}, nil
		}
		return MountConfig{ROPath: aPath, RWPath: bPath}, nil
	}
}

func parseBranchTag(spec string) (string, BranchKind, error) {
	p := spec
	kind := KindUnspecified
	if idx := strings.LastIndex(spec, "="); idx >= 0 {
		tag := strings.ToUpper(spec[idx+1:])
		switch tag {
		case "RO":
			p, kind = spec[:idx], KindReadOnly
		case "RW":
			p, kind = spec[:idx], KindReadWrite
		}
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "", KindUnspecified, fmt.Errorf("branch_spec: relative branch path %q: %w", spec, ErrInvalid)
	}
	return p, kind, nil
}
