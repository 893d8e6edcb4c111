package unionfs

import (
	"io"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

// findPath materializes, in RW, a shell directory for every ancestor of P
// that is missing there, walking from the root down exactly as find_path
// does in the source this design distills. Each shell copies its RO
// counterpart's mode if one exists, or falls back to 0755.
func (m *MountState) findPath(p string) error {
	return m.findPathWithToken(p, nil)
}

func (m *MountState) findPathWithToken(p string, tok *rootToken) error {
	return m.withRoot(tok, func(*rootToken) error {
		for _, anc := range prefixes(p) {
			if _, err := m.rw.Stat(anc); err == nil {
				continue
			} else if !os.IsNotExist(err) {
				return err
			}

			mode := os.FileMode(0755)
			if info, err := m.ro.Stat(anc); err == nil {
				mode = info.Mode().Perm()
			}
			if err := m.rw.MkdirAll(anc, mode); err != nil && !os.IsExist(err) {
				return err
			}
		}
		return nil
	})
}

// copyUp clones P from RO into RW, preserving type, content, permission
// bits, and (when the branch supports it) ownership, then invalidates P's
// cached inode binding since it now resolves to a different branch. If a
// sidecar exists for P, its overrides are folded into the copy's
// permissions/ownership/times and the sidecar is retired — a real copy now
// carries what the sidecar used to paper over, matching create_copyup's
// handling of a pre-existing metadata file in the source this design
// distills.
func (m *MountState) copyUp(p string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	info, err := tryLstat(m.ro, p)
	if err != nil {
		return err
	}
	m.log.WithField("path", p).Info("copy-up starting")

	if err := m.findPathWithToken(p, tok); err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		err = m.copyUpSymlink(p, info)
	case info.IsDir():
		err = m.copyUpDir(p, info)
	case info.Mode()&(os.ModeNamedPipe|os.ModeDevice|os.ModeSocket) != 0:
		err = m.copyUpSpecial(p, info)
	default:
		err = m.copyUpFile(p, info)
	}
	if err != nil {
		m.log.WithFields(logrus.Fields{"path": p, "error": err}).Warn("copy-up failed")
		return err
	}

	sc, ok, serr := m.findSidecar(p)
	if serr != nil {
		return serr
	}
	if ok {
		mode, uid, gid, atime, mtime := mergeAttrs(info.Mode(), statUID(info), statGID(info), info.ModTime(), info.ModTime(), sc)
		_ = m.rw.Chmod(p, mode.Perm())
		_ = tryLchown(m.rw, p, uid, gid)
		touch(m.rw, p, atime, mtime)
		if err := m.unlinkSidecarLocked(p); err != nil {
			return err
		}
	}

	m.cache.invalidate(p)
	return nil
}

func (m *MountState) copyUpFile(p string, info os.FileInfo) error {
	src, err := m.ro.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := m.rw.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	buf := make([]byte, m.copyBufferSize)
	_, cerr := io.CopyBuffer(dst, src, buf)
	if cerr2 := dst.Close(); cerr == nil {
		cerr = cerr2
	}
	if cerr != nil {
		return cerr
	}

	if err := m.rw.Chmod(p, info.Mode().Perm()); err != nil {
		return err
	}
	_ = tryLchown(m.rw, p, statUID(info), statGID(info))
	touch(m.rw, p, info.ModTime(), info.ModTime())
	return nil
}

func (m *MountState) copyUpSymlink(p string, info os.FileInfo) error {
	target, err := tryReadlink(m.ro, p)
	if err != nil {
		return err
	}
	if err := trySymlink(m.rw, target, p); err != nil {
		return err
	}
	if l, ok := m.rw.(Lchowner); ok {
		_ = l.LchownIfPossible(p, statUID(info), statGID(info))
	}
	return nil
}

// copyUpDir creates a non-recursive shell for P: the directory itself,
// with RO's permissions and ownership, leaving children to be copied up
// independently on first touch, matching copyUpDir's contract.
func (m *MountState) copyUpDir(p string, info os.FileInfo) error {
	if err := m.rw.MkdirAll(p, info.Mode().Perm()); err != nil && !os.IsExist(err) {
		return err
	}
	if err := m.rw.Chmod(p, info.Mode().Perm()); err != nil {
		return err
	}
	_ = tryLchown(m.rw, p, statUID(info), statGID(info))
	touch(m.rw, p, info.ModTime(), info.ModTime())
	return nil
}

// copyUpSpecial clones a FIFO, character device, block device, or socket
// node, which afero has no first-class method for; the branch must
// implement NodeMaker, or the copy-up fails with ErrInvalid exactly as
// mknod() fails an unsupported node type in the source this design
// distills.
func (m *MountState) copyUpSpecial(p string, info os.FileInfo) error {
	dev := deviceNumber(info)
	if err := tryMknod(m.rw, p, info.Mode(), dev); err != nil {
		return err
	}
	if err := m.rw.Chmod(p, info.Mode().Perm()); err != nil {
		return err
	}
	return tryLchown(m.rw, p, statUID(info), statGID(info))
}

// unlinkRWFile removes P's RW replica on a genuine unlink(2) and, if an
// RO entry of the same name still exists beneath it, resurrects a
// whiteout so the RO entry stays hidden — unlink_rw_file's contract: drop
// the writable replica, then reinstate the deletion record it had been
// standing in for. Any sidecar for P is discarded in the same step, since
// the file is gone for good and there is nothing left to describe.
func (m *MountState) unlinkRWFile(p string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	if err := m.rw.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := m.unlinkSidecarLocked(p); err != nil {
		return err
	}

	if _, err := m.ro.Stat(p); err == nil {
		if err := m.createWhiteoutWithToken(p, tok); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	m.cache.invalidate(p)
	m.log.WithField("path", p).Debug("unlinkRWFile: whiteout resurrected")
	return nil
}

// unlinkCopyup undoes a copy-up that a later step (a permission check, the
// real open() call) failed after, matching unlink_copyup's actual
// contract: stat the copy-up, delete it, and — only if the RO original is
// still resolvable — recreate a sidecar carrying the copy-up's captured
// attributes, so the attribute-override state the copy-up had been
// carrying is not silently lost. Unlike unlinkRWFile, no whiteout is
// created: P is not being deleted, the copy-up attempt is simply being
// rolled back, and RO must stay visible through the union exactly as it
// was before the copy-up started.
func (m *MountState) unlinkCopyup(p string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	info, statErr := m.rw.Stat(p)
	if statErr != nil && !os.IsNotExist(statErr) {
		return statErr
	}

	if err := m.rw.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}

	if _, err := m.ro.Stat(p); err == nil {
		if statErr == nil {
			attrs := sidecarAttrs{
				HasMode: true, Mode: info.Mode(),
				HasUID: true, UID: statUID(info),
				HasGID: true, GID: statGID(info),
				HasMtime: true, Mtime: info.ModTime(),
			}
			if err := m.createSidecarLocked(p, attrs); err != nil {
				return err
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	m.cache.invalidate(p)
	m.log.WithField("path", p).Debug("unlinkCopyup: copy-up rolled back")
	return nil
}

// unlinkSidecarLocked removes P's sidecar; callers already hold the
// escalation section.
func (m *MountState) unlinkSidecarLocked(p string) error {
	err := m.rw.Remove(sidecarPathFor(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// statUID and statGID recover the owner/group afero's os.FileInfo loses by
// flattening to the portable subset; a branch backed by a real filesystem
// (afero.OsFs) exposes the raw *syscall.Stat_t via Sys(), while in-memory
// branches (afero.MemMapFs) report 0/0.
func statUID(info os.FileInfo) int {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return int(st.Uid)
	}
	return 0
}

func statGID(info os.FileInfo) int {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return int(st.Gid)
	}
	return 0
}

func deviceNumber(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Rdev)
	}
	return 0
}
