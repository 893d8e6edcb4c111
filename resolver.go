package unionfs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ResolveFlag tunes how resolve treats a path, mirroring the MUST_READ_ONLY
// / MUST_READ_WRITE / FLAG_CREATE_COPYUP / IGNORE_WHITEOUT flags find_file
// accepts in the source this design distills.
type ResolveFlag int

const (
	// MustRW requires the result to already live in RW: if RW does not
	// hold P and CreateCopyup is not also set, resolve fails ENOENT
	// without ever consulting RO. Pair it with CreateCopyup to copy up
	// on demand instead of failing.
	MustRW ResolveFlag = 1 << iota
	// MustRO requires the result to come from RO, bypassing RW entirely,
	// so a caller sees the pre-copy-up original.
	MustRO
	// CreateCopyup triggers the copy-up engine when P only resolves into
	// RO: verify RO holds P, check the whiteout, then copy up.
	CreateCopyup
	// IgnoreWhiteout skips the whiteout check, letting a caller see
	// through a deletion record rather than be stopped by it.
	IgnoreWhiteout
)

// ResolveOutcome reports which branch resolve actually used.
type ResolveOutcome int

const (
	FoundInRO ResolveOutcome = iota
	FoundInRW
	CopiedUp
)

// Resolution is resolve's result: which branch P now lives in, and how it
// got there.
type Resolution struct {
	Outcome ResolveOutcome
	Branch  BranchFS
	Info    os.FileInfo
}

// resolve is the union's central path lookup, the Go analogue of
// find_file, in the same two steps find_file keeps distinct:
//
//  1. If MustRO is not set, test RW. A real entry there wins outright. If
//     MustRW is set (and CreateCopyup is not — CreateCopyup is MustRW's
//     lazy, copy-up-on-demand form) and RW does not hold P, fail ENOENT
//     immediately without ever consulting RO.
//  2. If CreateCopyup is set: check the whiteout (unless IgnoreWhiteout),
//     resolve against RO, and invoke the copy-up engine.
func (m *MountState) resolve(p string, flags ResolveFlag) (Resolution, error) {
	if err := checkPathLen(p); err != nil {
		return Resolution{}, err
	}
	p = cleanRelPath(p)

	if flags&MustRO == 0 {
		if info, err := tryLstat(m.rw, p); err == nil {
			m.log.WithField("path", p).Debug("resolve: found in RW")
			return Resolution{Outcome: FoundInRW, Branch: m.rw, Info: info}, nil
		} else if !os.IsNotExist(err) {
			return Resolution{}, err
		}
		if flags&MustRW != 0 && flags&CreateCopyup == 0 {
			return Resolution{}, ErrNotExist
		}
	}

	if flags&IgnoreWhiteout == 0 {
		whited, err := m.findWhiteout(p)
		if err != nil {
			return Resolution{}, err
		}
		if whited {
			return Resolution{}, ErrNotExist
		}
	}

	info, err := tryLstat(m.ro, p)
	if err != nil {
		if os.IsNotExist(err) {
			return Resolution{}, ErrNotExist
		}
		return Resolution{}, err
	}

	if flags&MustRO != 0 {
		return Resolution{Outcome: FoundInRO, Branch: m.ro, Info: info}, nil
	}

	if flags&CreateCopyup != 0 {
		m.log.WithField("path", p).Debug("resolve: triggering copy-up")
		if err := m.copyUp(p); err != nil {
			m.log.WithFields(logrus.Fields{"path": p, "error": err}).Warn("resolve: copy-up failed")
			return Resolution{}, err
		}
		rwInfo, err := tryLstat(m.rw, p)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Outcome: CopiedUp, Branch: m.rw, Info: rwInfo}, nil
	}

	return Resolution{Outcome: FoundInRO, Branch: m.ro, Info: info}, nil
}

// mustWritable is a thin wrapper around resolveChecked that copies P up
// when it only lives in RO, returning the RW path ready for a write-class
// operation.
func (m *MountState) mustWritable(p string, cred Credentials) (Resolution, error) {
	return m.resolveChecked(p, cred, MustRW|CreateCopyup)
}

// lookupReadOnly resolves P without ever triggering a copy-up, used by
// read-class operations (lookup, getattr, permission, readdir).
func (m *MountState) lookupReadOnly(p string) (Resolution, error) {
	return m.resolve(p, 0)
}

// resolveChecked is resolve with find_file's own can_traverse guard
// applied first: cred must hold execute permission on every ancestor of P
// before resolve is allowed to run, so a copy-up or RW/RO lookup never
// happens underneath a directory cred cannot even traverse. Every
// mutating VFS operation (create, mkdir, mknod, symlink, link, unlink,
// rmdir, setattr, open) goes through this instead of calling resolve
// directly; lookupReadOnly and canTraverse's own ancestor walk keep
// calling resolve bare, since they either have no caller identity to
// check (readdir's union merge) or would recurse into themselves.
func (m *MountState) resolveChecked(p string, cred Credentials, flags ResolveFlag) (Resolution, error) {
	if ok, err := m.canTraverse(cred, p); err != nil {
		return Resolution{}, err
	} else if !ok {
		return Resolution{}, ErrPermission
	}
	return m.resolve(p, flags)
}
