package unionfs

import (
	"os"
	"time"

	"github.com/absfs/absfs"
)

// absFSAdapter wraps a *MountState to implement absfs.Filer, letting a
// union mount plug into the rest of the absfs ecosystem (absfs.FileSystem,
// absfs.ExtendFiler's Open/Create/MkdirAll/RemoveAll convenience layer,
// and the absfs/fstesting conformance suite).
//
// absfs.Filer has no notion of a calling identity, so the adapter
// operates as root (uid 0, gid 0) — the mount's own permission checks
// still run; for a root caller they deny only execute/traverse on an
// entry with no execute bit set, matching how a process with
// CAP_DAC_OVERRIDE would interact with the original source.
type absFSAdapter struct {
	m *MountState
}

var _ absfs.Filer = (*absFSAdapter)(nil)

var rootCred = Credentials{UID: 0, GID: 0}

// FileSystem returns an absfs.FileSystem view of the mount, maintaining
// its own working-directory state and the full absfs.FileSystem surface
// (Open, Create, MkdirAll, RemoveAll, Truncate, ...).
func (m *MountState) FileSystem() absfs.FileSystem {
	return absfs.ExtendFiler(&absFSAdapter{m: m})
}

func (a *absFSAdapter) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	f, err := a.m.Open(cleanRelPath(name), flag, rootCred)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return f.(absfs.File), nil
}

func (a *absFSAdapter) Mkdir(name string, perm os.FileMode) error {
	return a.m.Mkdir(cleanRelPath(name), perm, rootCred)
}

func (a *absFSAdapter) Remove(name string) error {
	p := cleanRelPath(name)
	info, _, err := a.m.Lookup(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return a.m.Rmdir(p, rootCred)
	}
	return a.m.Unlink(p, rootCred)
}

// Rename is not a core VFS primitive (see vfs.go's Rmdir doc); the
// adapter composes it from Link and Unlink: link the source at the
// destination (a hard link when the source lives in RW, a symlink to its
// RO branch path otherwise), then unlink the source. Directories are
// rejected with ErrInvalid.
func (a *absFSAdapter) Rename(oldpath, newpath string) error {
	oldp, newp := cleanRelPath(oldpath), cleanRelPath(newpath)
	info, _, err := a.m.Lookup(oldp)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrInvalid
	}
	if err := a.m.Link(oldp, newp, rootCred); err != nil {
		return err
	}
	return a.m.Unlink(oldp, rootCred)
}

func (a *absFSAdapter) Stat(name string) (os.FileInfo, error) {
	return a.m.Getattr(cleanRelPath(name))
}

func (a *absFSAdapter) Chmod(name string, mode os.FileMode) error {
	return a.m.Setattr(cleanRelPath(name), sidecarAttrs{HasMode: true, Mode: mode}, rootCred)
}

func (a *absFSAdapter) Chtimes(name string, atime, mtime time.Time) error {
	return a.m.Setattr(cleanRelPath(name), sidecarAttrs{
		HasAtime: true, Atime: atime,
		HasMtime: true, Mtime: mtime,
	}, rootCred)
}

func (a *absFSAdapter) Chown(name string, uid, gid int) error {
	return a.m.Setattr(cleanRelPath(name), sidecarAttrs{
		HasUID: true, UID: uid,
		HasGID: true, GID: gid,
	}, rootCred)
}

func (a *absFSAdapter) Separator() uint8     { return '/' }
func (a *absFSAdapter) ListSeparator() uint8 { return ':' }

func (a *absFSAdapter) Truncate(name string, size int64) error {
	p := cleanRelPath(name)
	info, _, err := a.m.Lookup(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &os.PathError{Op: "truncate", Path: name, Err: ErrIsDirectory}
	}

	res, err := a.m.mustWritable(p, rootCred)
	if err != nil {
		return err
	}
	if t, ok := res.Branch.(interface{ Truncate(string, int64) error }); ok {
		err = t.Truncate(p, size)
	} else {
		f, ferr := res.Branch.OpenFile(p, os.O_WRONLY, 0)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		if tf, ok := f.(interface{ Truncate(int64) error }); ok {
			err = tf.Truncate(size)
		} else {
			err = ErrInvalid
		}
	}
	if err == nil {
		a.m.cache.invalidate(p)
	}
	return err
}
