package unionfs

import (
	"io"
	"os"
)

// createWhiteout ensures P's parent directory exists in RW (via
// findPath, §4.5) and then creates the `.wh.` marker, owned by root, mode
// 0400, matching create_whiteout_worker in the source this design
// distills.
func (m *MountState) createWhiteout(p string) error {
	if err := checkPathLen(p); err != nil {
		return err
	}
	if _, ok := parent(p); !ok {
		return ErrInvalid
	}
	if err := m.findPath(path2(p)); err != nil {
		return err
	}
	return m.createWhiteoutWorker(whiteoutPathFor(p))
}

func (m *MountState) createWhiteoutWorker(whPath string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	f, err := m.rw.OpenFile(whPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0400)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	f.Close()
	if err := m.rw.Chmod(whPath, 0400); err != nil {
		return err
	}
	m.log.WithField("path", whPath).Debug("whiteout created")
	return tryLchown(m.rw, whPath, 0, 0)
}

// findWhiteout reports whether P is hidden by a whiteout marker.
func (m *MountState) findWhiteout(p string) (bool, error) {
	whPath := whiteoutPathFor(p)
	_, err := m.rw.Stat(whPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// unlinkWhiteout removes P's whiteout marker if present; absence is not
// an error, matching unlink_whiteout's contract.
func (m *MountState) unlinkWhiteout(p string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	err := m.rw.Remove(whiteoutPathFor(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		m.log.WithField("path", p).Debug("whiteout unlinked")
	}
	return nil
}

// unlinkWhiteoutWithToken is unlinkWhiteout's body, reused by callers that
// already hold the escalation section (Rmdir's whiteout-create rollback).
func (m *MountState) unlinkWhiteoutWithToken(p string, tok *rootToken) error {
	return m.withRoot(tok, func(*rootToken) error {
		err := m.rw.Remove(whiteoutPathFor(p))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err == nil {
			m.log.WithField("path", p).Debug("whiteout unlinked")
		}
		return nil
	})
}

// hideDirectoryContents creates a whiteout at P/E for every entry E
// listed in the RO directory at P, used when a new RW directory is
// created masking a pre-existing RO directory (mkdir's contract, §4.9).
// It is a success if RO has no directory at P at all.
func (m *MountState) hideDirectoryContents(p string) error {
	dir, err := m.ro.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer dir.Close()

	entries, err := dir.Readdir(-1)
	if err != nil && err != io.EOF {
		return err
	}

	tok := m.pushRoot()
	defer m.popRoot(tok)

	for _, e := range entries {
		name := e.Name()
		if isSpecialName(name) || isWhiteoutName(name) || isSidecarName(name) {
			continue
		}
		child := path2(p, name)
		if err := m.createWhiteoutWithToken(child, tok); err != nil {
			return err
		}
	}
	return nil
}

// createWhiteoutWithToken is createWhiteout's body, reused by
// hideDirectoryContents which already holds the escalation section.
func (m *MountState) createWhiteoutWithToken(p string, tok *rootToken) error {
	if err := checkPathLen(p); err != nil {
		return err
	}
	if _, ok := parent(p); !ok {
		return ErrInvalid
	}
	if err := m.findPathWithToken(p, tok); err != nil {
		return err
	}
	whPath := whiteoutPathFor(p)
	f, err := m.rw.OpenFile(whPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0400)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	f.Close()
	if err := m.rw.Chmod(whPath, 0400); err != nil {
		return err
	}
	return tryLchown(m.rw, whPath, 0, 0)
}

// isEmptyDir checks, per the union, whether the directory at P is empty:
// every RO entry must be whited-out in RW, and RW must contain only
// whiteouts and sidecars. When both halves pass, matching whiteouts are
// deleted in the same pass (is_empty_dir's cleanup step).
func (m *MountState) isEmptyDir(p string) (bool, error) {
	if roDir, err := m.ro.Open(p); err == nil {
		defer roDir.Close()
		entries, err := roDir.Readdir(-1)
		if err != nil && err != io.EOF {
			return false, err
		}
		for _, e := range entries {
			name := e.Name()
			if isSpecialName(name) {
				continue
			}
			found, err := m.findWhiteout(path2(p, name))
			if err != nil {
				return false, err
			}
			if !found {
				return false, nil
			}
		}
	} else if !os.IsNotExist(err) {
		return false, err
	}

	rwDir, err := m.rw.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer rwDir.Close()

	entries, err := rwDir.Readdir(-1)
	if err != nil && err != io.EOF {
		return false, err
	}

	var whiteouts []string
	for _, e := range entries {
		name := e.Name()
		if isSpecialName(name) {
			continue
		}
		if isWhiteoutName(name) {
			whiteouts = append(whiteouts, name)
			continue
		}
		if isSidecarName(name) {
			continue
		}
		return false, ErrNotEmpty
	}

	tok := m.pushRoot()
	defer m.popRoot(tok)
	for _, w := range whiteouts {
		_ = m.rw.Remove(path2(p, w))
	}

	return true, nil
}

// path2 joins P with zero or more additional components, returning a
// cleaned relative path; a small convenience used throughout the core
// instead of repeating path.Join(p, path.Join(parts...)).
func path2(p string, parts ...string) string {
	for _, part := range parts {
		p = cleanRelPath(p) + "/" + part
	}
	return cleanRelPath(p)
}
