package unionfs

import "os"

// rightsMask mirrors RIGHTS_MASK: only the low three bits of a permission
// triad are ever compared (read/write/execute), never the setuid/setgid/
// sticky bits above them.
const rightsMask = 0x7

// AccessMode is the requested-rights bitmask passed to canAccess, shaped
// like the r/w/x triad of a POSIX permission check.
type AccessMode int

const (
	AccessRead AccessMode = 1 << iota
	AccessWrite
	AccessExecute
)

// Credentials is the caller identity a permission check is evaluated
// against — the Go analogue of the current->cred the original source
// reads implicitly; callers pass it explicitly since a library has no
// ambient calling-thread identity to read.
type Credentials struct {
	UID int
	GID int
}

func (c Credentials) isRoot() bool { return c.UID == 0 }

// canAccess reports whether cred may exercise want against an entry whose
// owner/group/mode are given, matching can_access's root-bypass-with-
// execute-bit-exception: root can read and write anything unconditionally,
// but still needs at least one execute bit set somewhere in the triad to
// traverse/execute, exactly as the original special-cases MAY_EXEC for
// root.
func canAccess(cred Credentials, mode os.FileMode, uid, gid int, want AccessMode) bool {
	if cred.isRoot() {
		if want&AccessExecute == 0 {
			return true
		}
		return mode&0111 != 0
	}

	perm := mode.Perm()
	var triad os.FileMode
	switch {
	case cred.UID == uid:
		triad = (perm >> 6) & rightsMask
	case cred.GID == gid:
		triad = (perm >> 3) & rightsMask
	default:
		triad = perm & rightsMask
	}

	var bit os.FileMode
	if want&AccessRead != 0 {
		bit |= 4
	}
	if want&AccessWrite != 0 {
		bit |= 2
	}
	if want&AccessExecute != 0 {
		bit |= 1
	}
	return triad&bit == bit
}

// canTraverse requires execute permission on every ancestor directory of
// P, matching can_traverse's prefix walk; it never checks P itself.
func (m *MountState) canTraverse(cred Credentials, p string) (bool, error) {
	for _, anc := range prefixes(p) {
		res, err := m.lookupReadOnly(anc)
		if err != nil {
			return false, err
		}
		uid, gid := statUID(res.Info), statGID(res.Info)
		if !canAccess(cred, res.Info.Mode(), uid, gid, AccessExecute) {
			return false, nil
		}
	}
	return true, nil
}

// canCreate reports whether cred may create a new entry inside the
// directory at dirPath, delegating to a write check on the parent —
// can_create's contract.
func (m *MountState) canCreate(cred Credentials, dirPath string) (bool, error) {
	res, err := m.lookupReadOnly(dirPath)
	if err != nil {
		return false, err
	}
	uid, gid := statUID(res.Info), statGID(res.Info)
	return canAccess(cred, res.Info.Mode(), uid, gid, AccessWrite), nil
}

// canRemove reports whether cred may remove the entry at P, delegating to
// a write check on P's parent directory, matching can_remove's contract
// (a sticky-bit exception is deliberately not modeled: the source this
// design distills does not implement one either).
func (m *MountState) canRemove(cred Credentials, p string) (bool, error) {
	dir, ok := parent(p)
	if !ok {
		return false, nil
	}
	return m.canCreate(cred, dir)
}
