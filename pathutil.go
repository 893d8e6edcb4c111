package unionfs

import (
	"path"
	"strings"
)

// WhiteoutPrefix marks a deletion record for a same-named RO entry.
const WhiteoutPrefix = ".wh."

// SidecarPrefix marks an attribute-override record for a same-named RO entry.
const SidecarPrefix = ".me."

// cleanRelPath canonicalizes P into the `/`-rooted, branch-prefix-free form
// the resolver and every other component operate on.
func cleanRelPath(p string) string {
	if p == "" {
		return "/"
	}
	c := path.Clean("/" + p)
	return c
}

// isWhiteoutName reports whether base is a whiteout marker's basename.
func isWhiteoutName(base string) bool {
	return strings.HasPrefix(base, WhiteoutPrefix) && base != WhiteoutPrefix
}

// isSidecarName reports whether base is a sidecar marker's basename.
func isSidecarName(base string) bool {
	return strings.HasPrefix(base, SidecarPrefix) && base != SidecarPrefix
}

// isSpecialName reports whether base is "." or "..", which copy-up and
// directory union must always skip.
func isSpecialName(base string) bool {
	return base == "." || base == ".."
}

// isReservedName reports whether base collides with the whiteout/sidecar
// prefix namespace and must therefore be rejected by create-type operations
// (create, mkdir, mknod, symlink, link) on the union surface.
func isReservedName(base string) bool {
	return strings.HasPrefix(base, WhiteoutPrefix) || strings.HasPrefix(base, SidecarPrefix)
}

// whiteoutBase strips the whiteout prefix, returning the basename it hides.
func whiteoutBase(base string) string {
	return strings.TrimPrefix(base, WhiteoutPrefix)
}

// sidecarBase strips the sidecar prefix, returning the basename it overrides.
func sidecarBase(base string) string {
	return strings.TrimPrefix(base, SidecarPrefix)
}

// whiteoutPathFor returns the `.wh.<base>` branch path for P, inside P's
// parent directory.
func whiteoutPathFor(p string) string {
	return specialPathFor(p, WhiteoutPrefix)
}

// sidecarPathFor returns the `.me.<base>` branch path for P, inside P's
// parent directory.
func sidecarPathFor(p string) string {
	return specialPathFor(p, SidecarPrefix)
}

func specialPathFor(p, prefix string) string {
	p = cleanRelPath(p)
	dir, base := path.Split(p)
	if dir == "" {
		dir = "/"
	}
	return path.Join(dir, prefix+base)
}

// parent returns the parent of a relative path, or "" if P has no parent
// (P is the root).
func parent(p string) (string, bool) {
	p = cleanRelPath(p)
	if p == "/" {
		return "", false
	}
	d := path.Dir(p)
	return cleanRelPath(d), true
}

// prefixes returns every non-root prefix of P from shallowest to deepest,
// exclusive of P itself, used by can_traverse and find_path to walk
// directory components from the root down.
func prefixes(p string) []string {
	p = cleanRelPath(p)
	if p == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := make([]string, 0, len(parts)-1)
	cur := ""
	for i := 0; i < len(parts)-1; i++ {
		cur = cur + "/" + parts[i]
		out = append(out, cur)
	}
	return out
}

// maxPathLen mirrors the original source's PATH_MAX bound on a composed
// branch path; Go has no analogous kernel limit but the check is kept so
// pathologically long unions still fail with ENAMETOOLONG rather than an
// opaque branch I/O error.
const maxPathLen = 4096

func checkPathLen(p string) error {
	if len(p) > maxPathLen {
		return ErrNameTooLong
	}
	return nil
}
