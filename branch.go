package unionfs

import (
	"io/fs"
	"os"
	"time"

	"github.com/spf13/afero"
)

// BranchFS is the Branch I/O capability the core requires from an
// underlying directory tree: stat, open, read, write, readdir, mkdir,
// rmdir, unlink, mknod, mkfifo, symlink, readlink, link, setattr, lookup.
// The core never touches a branch through any other surface.
//
// A plain afero.Fs already satisfies most of this; the handful of
// capabilities afero has no first-class method for (symlink, lchown,
// device/FIFO/socket nodes, hard links) are reached through the optional
// interfaces below, exactly the way the teacher's symlink.go and
// file_ops.go probe layer.fs for Symlink/Lchown/LstatIfPossible via type
// assertions rather than widening the required interface.
type BranchFS = afero.Fs

// Symlinker is implemented by branches that can create and resolve
// symbolic links via SymlinkIfPossible/ReadlinkIfPossible (afero.OsFs
// does; afero.MemMapFs does not).
type Symlinker interface {
	SymlinkIfPossible(oldname, newname string) error
	ReadlinkIfPossible(name string) (string, error)
}

// Lchowner is implemented by branches that can change ownership of a
// symlink without following it.
type Lchowner interface {
	LchownIfPossible(name string, uid, gid int) error
}

// Lstater is implemented by branches that can stat without following a
// final symlink component (afero.Lstater).
type Lstater = afero.Lstater

// NodeMaker is implemented by branches that can create FIFO, character
// device, block device, and socket nodes — a capability outside afero's
// interface, needed by the copy-up engine's device/FIFO/socket clone path.
// A branch that does not implement this interface simply fails those
// clones with ErrInvalid, same as the original source's mknod() rejecting
// S_IFDIR with -EPERM for an unsupported combination.
type NodeMaker interface {
	Mknod(name string, mode fs.FileMode, dev uint64) error
}

// HardLinker is implemented by branches that can create a hard link
// within themselves (never across branches — see link()'s fallback rule
// in vfs.go).
type HardLinker interface {
	Link(oldname, newname string) error
}

func trySymlink(b BranchFS, oldname, newname string) error {
	if s, ok := b.(Symlinker); ok {
		return s.SymlinkIfPossible(oldname, newname)
	}
	return ErrInvalid
}

func tryReadlink(b BranchFS, name string) (string, error) {
	if s, ok := b.(Symlinker); ok {
		return s.ReadlinkIfPossible(name)
	}
	return "", ErrInvalid
}

func tryLchown(b BranchFS, name string, uid, gid int) error {
	if l, ok := b.(Lchowner); ok {
		return l.LchownIfPossible(name, uid, gid)
	}
	return b.Chown(name, uid, gid)
}

func tryLstat(b BranchFS, name string) (os.FileInfo, error) {
	if l, ok := b.(Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return b.Stat(name)
}

func tryMknod(b BranchFS, name string, mode fs.FileMode, dev uint64) error {
	if n, ok := b.(NodeMaker); ok {
		return n.Mknod(name, mode, dev)
	}
	return ErrInvalid
}

func tryLink(b BranchFS, oldname, newname string) error {
	if l, ok := b.(HardLinker); ok {
		return l.Link(oldname, newname)
	}
	return ErrInvalid
}

// touch applies atime/mtime to a freshly-written branch entry, mirroring
// the Chtimes-after-write pattern the teacher uses in copyUpFile/copyUpDir.
func touch(b BranchFS, name string, atime, mtime time.Time) {
	_ = b.Chtimes(name, atime, mtime)
}
