package unionfs

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// Lookup resolves P to the union-merged attributes a caller would see,
// without copying anything up — the getattr/lookup half of the VFS
// surface. It never modifies either branch; it only records P's inode
// binding in the inode cache.
func (m *MountState) Lookup(p string) (os.FileInfo, uint64, error) {
	res, err := m.lookupReadOnly(p)
	if err != nil {
		return nil, 0, err
	}
	return m.mergedInfo(p, res)
}

// Getattr is Lookup without the inode number, for callers that only need
// the merged stat.
func (m *MountState) Getattr(p string) (os.FileInfo, error) {
	info, _, err := m.Lookup(p)
	return info, err
}

// mergedInfo folds any sidecar for P into res.Info's reported attributes
// and returns P's stable inode number.
func (m *MountState) mergedInfo(p string, res Resolution) (os.FileInfo, uint64, error) {
	ino := m.cache.put(p, res.Info.IsDir()).Number

	if res.Outcome == FoundInRW {
		return res.Info, ino, nil
	}
	sc, ok, err := m.findSidecar(p)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return res.Info, ino, nil
	}
	mode, uid, gid, atime, mtime := mergeAttrs(res.Info.Mode(), statUID(res.Info), statGID(res.Info), res.Info.ModTime(), res.Info.ModTime(), sc)
	return &mergedFileInfo{base: res.Info, mode: mode, uid: uid, gid: gid, atime: atime, mtime: mtime}, ino, nil
}

// mergedFileInfo overlays sidecar-sourced overrides onto a branch's real
// os.FileInfo for callers that must see get_full_attr's merge result
// rather than the raw RO stat.
type mergedFileInfo struct {
	base               os.FileInfo
	mode               os.FileMode
	uid, gid           int
	atime, mtime       time.Time
}

func (i *mergedFileInfo) Name() string       { return i.base.Name() }
func (i *mergedFileInfo) Size() int64        { return i.base.Size() }
func (i *mergedFileInfo) Mode() os.FileMode  { return i.mode }
func (i *mergedFileInfo) ModTime() time.Time { return i.mtime }
func (i *mergedFileInfo) IsDir() bool        { return i.base.IsDir() }
func (i *mergedFileInfo) Sys() any           { return i.base.Sys() }

// UID and GID expose the sidecar-merged owner, since os.FileInfo has no
// portable accessor for it.
func (i *mergedFileInfo) UID() int { return i.uid }
func (i *mergedFileInfo) GID() int { return i.gid }

// Atime exposes the sidecar-merged access time.
func (i *mergedFileInfo) Atime() time.Time { return i.atime }

// Permission checks whether cred may exercise want against P, resolving
// through any sidecar override first.
func (m *MountState) Permission(p string, cred Credentials, want AccessMode) error {
	if ok, err := m.canTraverse(cred, p); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}
	info, _, err := m.Lookup(p)
	if err != nil {
		return err
	}
	mi, ok := info.(*mergedFileInfo)
	uid, gid := statUID(info), statGID(info)
	if ok {
		uid, gid = mi.UID(), mi.GID()
	}
	if !canAccess(cred, info.Mode(), uid, gid, want) {
		return ErrPermission
	}
	return nil
}

// Create makes a new regular file at P in RW, failing with ErrExist if P
// already resolves to something. A whiteout-hidden RO entry of the same
// name does not count as existing — that is exactly the create-after-
// delete case the whiteout exists to support — and is cleared once the
// new entry is in place.
func (m *MountState) Create(p string, mode os.FileMode, cred Credentials) error {
	if isReservedName(baseOf(p)) {
		return ErrInvalid
	}
	if _, err := m.resolveChecked(p, cred, 0); err == nil {
		return ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}
	dir, ok := parent(p)
	if !ok {
		return ErrInvalid
	}
	if ok, err := m.canCreate(cred, dir); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}

	if err := m.findPath(p); err != nil {
		return err
	}
	tok := m.pushRoot()
	defer m.popRoot(tok)

	f, err := m.rw.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	f.Close()
	_ = tryLchown(m.rw, p, cred.UID, cred.GID)

	if err := m.unlinkWhiteoutWithToken(p, tok); err != nil {
		return err
	}
	m.cache.invalidate(p)
	return nil
}

// Mkdir creates a directory at P in RW. If an RO directory of the same
// name exists, its visible contents are hidden with whiteouts so the new,
// empty RW directory does not appear to already contain RO's children —
// mkdir's contract in the source this design distills.
func (m *MountState) Mkdir(p string, mode os.FileMode, cred Credentials) error {
	if isReservedName(baseOf(p)) {
		return ErrInvalid
	}
	if _, err := m.resolveChecked(p, cred, 0); err == nil {
		return ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}
	dir, ok := parent(p)
	if !ok {
		return ErrInvalid
	}
	if ok, err := m.canCreate(cred, dir); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}

	if err := m.findPath(p); err != nil {
		return err
	}
	tok := m.pushRoot()
	if err := m.rw.Mkdir(p, mode.Perm()); err != nil {
		m.popRoot(tok)
		return err
	}
	_ = tryLchown(m.rw, p, cred.UID, cred.GID)
	m.popRoot(tok)

	if err := m.unlinkWhiteout(p); err != nil {
		return err
	}
	if err := m.hideDirectoryContents(p); err != nil {
		return err
	}
	m.cache.invalidate(p)
	return nil
}

// Mknod creates a FIFO, character device, block device, or socket node at
// P in RW, requiring the RW branch to implement NodeMaker.
func (m *MountState) Mknod(p string, mode os.FileMode, dev uint64, cred Credentials) error {
	if isReservedName(baseOf(p)) {
		return ErrInvalid
	}
	if _, err := m.resolveChecked(p, cred, 0); err == nil {
		return ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}
	dir, ok := parent(p)
	if !ok {
		return ErrInvalid
	}
	if ok, err := m.canCreate(cred, dir); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}
	if err := m.findPath(p); err != nil {
		return err
	}

	tok := m.pushRoot()
	err := tryMknod(m.rw, p, mode, dev)
	if err == nil {
		_ = tryLchown(m.rw, p, cred.UID, cred.GID)
	}
	m.popRoot(tok)
	if err != nil {
		return err
	}

	if err := m.unlinkWhiteout(p); err != nil {
		return err
	}
	m.cache.invalidate(p)
	return nil
}

// Symlink creates a symbolic link at P in RW pointing at target.
func (m *MountState) Symlink(target, p string, cred Credentials) error {
	if isReservedName(baseOf(p)) {
		return ErrInvalid
	}
	if _, err := m.resolveChecked(p, cred, 0); err == nil {
		return ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}
	dir, ok := parent(p)
	if !ok {
		return ErrInvalid
	}
	if ok, err := m.canCreate(cred, dir); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}
	if err := m.findPath(p); err != nil {
		return err
	}

	tok := m.pushRoot()
	err := trySymlink(m.rw, target, p)
	if err == nil {
		if l, ok := m.rw.(Lchowner); ok {
			_ = l.LchownIfPossible(p, cred.UID, cred.GID)
		}
	}
	m.popRoot(tok)
	if err != nil {
		return err
	}

	if err := m.unlinkWhiteout(p); err != nil {
		return err
	}
	m.cache.invalidate(p)
	return nil
}

// Link creates a hard link at newPath to oldPath. A real hard link is
// only possible when oldPath already lives in RW: RO is immutable, and a
// hard link into it would let a write through newPath mutate the
// "read-only" branch. When oldPath still resolves into RO, Link falls
// back to a symlink at newPath pointing at oldPath's RO branch path,
// exactly the cross-branch fallback the source this design distills
// documents rather than silently copying-up and linking within RW.
func (m *MountState) Link(oldPath, newPath string, cred Credentials) error {
	if isReservedName(baseOf(newPath)) {
		return ErrInvalid
	}
	if _, err := m.resolveChecked(newPath, cred, 0); err == nil {
		return ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}
	dir, ok := parent(newPath)
	if !ok {
		return ErrInvalid
	}
	if ok, err := m.canCreate(cred, dir); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}

	res, err := m.resolveChecked(oldPath, cred, 0)
	if err != nil {
		return err
	}
	if err := m.findPath(newPath); err != nil {
		return err
	}

	tok := m.pushRoot()
	if res.Outcome == FoundInRW {
		err = tryLink(m.rw, oldPath, newPath)
	} else {
		err = trySymlink(m.rw, m.branchPath(m.ro, oldPath), newPath)
	}
	m.popRoot(tok)
	if err != nil {
		return err
	}

	if err := m.unlinkWhiteout(newPath); err != nil {
		return err
	}
	m.cache.invalidate(newPath)
	return nil
}

// Unlink removes the entry at P. If P still resolves into RO, its sidecar
// (if any) is removed first and a whiteout created in its place; if the
// whiteout fails, the sidecar is restored with its captured attributes
// rather than left silently lost, matching hepunion_unlink's own
// create_me-on-failure compensation. If P already has an RW replica,
// unlinkRWFile drops it and resurrects the whiteout if RO still has an
// entry of the same name underneath.
func (m *MountState) Unlink(p string, cred Credentials) error {
	if ok, err := m.canRemove(cred, p); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}

	res, err := m.resolveChecked(p, cred, 0)
	if err != nil {
		return err
	}
	if res.Info.IsDir() {
		return ErrIsDirectory
	}

	switch res.Outcome {
	case FoundInRW:
		return m.unlinkRWFile(p)
	default:
		attrs, hadSidecar, serr := m.findSidecar(p)
		if serr != nil {
			return serr
		}
		if hadSidecar {
			if err := m.unlinkSidecar(p); err != nil {
				return err
			}
		}
		if err := m.createWhiteout(p); err != nil {
			if hadSidecar {
				_ = m.createSidecar(p, attrs)
			}
			return err
		}
		return nil
	}
}

// Rmdir removes the empty directory at P, composed from isEmptyDir's
// union-aware emptiness check plus the same resolve/whiteout logic
// Unlink uses. Rename is explicitly out of scope as a core VFS
// primitive; a caller wanting rename semantics composes Link, Unlink,
// and a whiteout the way userspace mv already does across the analogous
// EXDEV boundary.
func (m *MountState) Rmdir(p string, cred Credentials) error {
	if ok, err := m.canRemove(cred, p); err != nil {
		return err
	} else if !ok {
		return ErrPermission
	}

	res, err := m.resolveChecked(p, cred, 0)
	if err != nil {
		return err
	}
	if !res.Info.IsDir() {
		return ErrNotDirectory
	}
	empty, err := m.isEmptyDir(p)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}

	roExists := false
	if _, err := m.ro.Stat(p); err == nil {
		roExists = true
	} else if !os.IsNotExist(err) {
		return err
	}

	tok := m.pushRoot()
	if roExists {
		if err := m.createWhiteoutWithToken(p, tok); err != nil {
			m.popRoot(tok)
			return err
		}
	}

	if res.Outcome == FoundInRW {
		if err := m.rw.RemoveAll(p); err != nil {
			if roExists {
				_ = m.unlinkWhiteoutWithToken(p, tok)
			}
			m.popRoot(tok)
			return err
		}
	}
	m.popRoot(tok)

	m.cache.invalidate(p)
	return nil
}

// Setattr applies an attribute delta to P: mode/uid/gid/atime/mtime
// changes are recorded as a sidecar when P still resolves into RO (the
// full-copy-up-avoidance path §4.4 exists for), or applied directly when
// P already lives in RW.
func (m *MountState) Setattr(p string, delta sidecarAttrs, cred Credentials) error {
	res, err := m.resolveChecked(p, cred, 0)
	if err != nil {
		return err
	}
	owner := statUID(res.Info)
	if sc, ok, serr := m.findSidecar(p); serr == nil && ok && sc.HasUID {
		owner = sc.UID
	}
	if !cred.isRoot() && cred.UID != owner {
		return ErrPermission
	}

	if res.Outcome == FoundInRW {
		return m.applyAttrs(p, delta)
	}
	return m.setMetadata(p, delta)
}

func (m *MountState) applyAttrs(p string, delta sidecarAttrs) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	if delta.HasMode {
		if err := m.rw.Chmod(p, delta.Mode.Perm()); err != nil {
			return err
		}
	}
	if delta.HasUID || delta.HasGID {
		uid, gid := -1, -1
		if delta.HasUID {
			uid = delta.UID
		}
		if delta.HasGID {
			gid = delta.GID
		}
		if err := tryLchown(m.rw, p, uid, gid); err != nil {
			return err
		}
	}
	if delta.HasAtime || delta.HasMtime {
		info, err := m.rw.Stat(p)
		if err != nil {
			return err
		}
		atime, mtime := info.ModTime(), info.ModTime()
		if delta.HasAtime {
			atime = delta.Atime
		}
		if delta.HasMtime {
			mtime = delta.Mtime
		}
		touch(m.rw, p, atime, mtime)
	}
	m.cache.invalidate(p)
	return nil
}

// Open resolves P for I/O, copying up first when write access is
// requested, exactly as open()'s FLAG_CREATE_COPYUP path does. A
// successful copy-up or new-inode creation followed by a failing
// permission check or a failing real open() is rolled back rather than
// left behind: hepunion_open unwinds exactly these two steps (opts.c's
// unlink_copyup calls around the permission and dentry_open checks).
func (m *MountState) Open(p string, flag int, cred Credentials) (File, error) {
	wantWrite := flag&(os.O_WRONLY|os.O_RDWR) != 0

	var res Resolution
	var err error
	created := false
	if wantWrite {
		res, err = m.resolveChecked(p, cred, MustRW|CreateCopyup)
	} else {
		res, err = m.resolveChecked(p, cred, 0)
	}
	if err != nil {
		if os.IsNotExist(err) && flag&os.O_CREATE != 0 {
			if cerr := m.Create(p, 0644, cred); cerr != nil {
				return nil, cerr
			}
			created = true
			res, err = m.resolve(p, MustRW)
		}
		if err != nil {
			return nil, err
		}
	}

	want := AccessRead
	if wantWrite {
		want = AccessWrite
	}
	if err := m.Permission(p, cred, want); err != nil {
		m.rollbackOpen(p, res, created)
		return nil, err
	}

	f, err := res.Branch.OpenFile(p, flag&^os.O_CREATE, 0)
	if err != nil {
		m.rollbackOpen(p, res, created)
		return nil, err
	}
	return f, nil
}

// rollbackOpen unwinds whatever RW-side artefact Open just produced when
// a later step fails: a freshly created new inode is deleted outright
// (§7's "new-inode failure deletes the RW artefact"), while a
// just-performed copy-up is unwound through unlinkCopyup's
// restore-the-sidecar contract rather than a bare delete, since RO must
// stay exactly as visible through the union as it was before Open ran.
func (m *MountState) rollbackOpen(p string, res Resolution, created bool) {
	if created {
		_ = m.Unlink(p, rootCred)
		return
	}
	if res.Outcome == CopiedUp {
		_ = m.unlinkCopyup(p)
	}
}

// File is the handle an Open caller reads, writes, and seeks through,
// aliased to afero.File so callers need not import afero directly to use
// the union.
type File = afero.File

// Readdir lists the union-merged contents of the directory at P.
func (m *MountState) Readdir(p string) ([]DirEntry, error) {
	return m.readdir(p)
}

// statfsMagic is the union's own filesystem magic number, reported in
// StatfsInfo.Type exactly as hepunion_statfs sets buf->f_type.
const statfsMagic = 0x9F510

// StatfsInfo mirrors struct statfs's fields this union actually
// populates. Space and inode counts come from the RO branch alone: RO is
// the one real, bounded filesystem a mount sits on, and hepunion_statfs
// calls vfs_statfs on it verbatim rather than summing it with RW.
type StatfsInfo struct {
	Type        uint32
	Fsid        [2]int32
	BlocksTotal uint64
	BlocksFree  uint64
	FilesTotal  uint64
	FilesFree   uint64
}

// StatfsCapable is implemented by branches that can report real space
// usage (an afero.OsFs wrapping a real mount, say); branches that cannot
// (afero.MemMapFs) are treated as having no space limit.
type StatfsCapable interface {
	StatfsIfPossible() (StatfsInfo, error)
}

// Statfs reports RO's statfs information verbatim, stamped with the
// union's magic number and an f_fsid derived from InodeSeed's two
// 32-bit halves, matching hepunion_statfs.
func (m *MountState) Statfs() (StatfsInfo, error) {
	var out StatfsInfo
	if s, ok := m.ro.(StatfsCapable); ok {
		ro, err := s.StatfsIfPossible()
		if err != nil {
			return StatfsInfo{}, err
		}
		out = ro
	}
	out.Type = statfsMagic
	seed := InodeSeed
	out.Fsid = [2]int32{int32(uint32(seed)), int32(uint32(seed >> 32))}
	return out, nil
}

func baseOf(p string) string {
	p = cleanRelPath(p)
	if p == "/" {
		return ""
	}
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	return p[i+1:]
}
