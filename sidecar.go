package unionfs

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// VALID_MODES_MASK: the bits a sidecar is allowed to override — setuid,
// setgid, sticky, and the rwx triad for user/group/other. A sidecar
// never overrides the entry-type bits.
const validModesMask = os.ModeSetuid | os.ModeSetgid | os.ModeSticky | os.ModePerm

// sidecarAttrs is the attribute-override record a `.me.` sidecar carries
// for its RO entry: any subset of mode bits, owner, and times, letting a
// chmod/chown/utimes on a read-only entry avoid a full copy-up. It is the
// in-repo equivalent of the metadata_t struct the source this design
// distills stores as a sidecar file's content.
type sidecarAttrs struct {
	HasMode bool        `json:"has_mode,omitempty"`
	Mode    os.FileMode `json:"mode,omitempty"`
	HasUID  bool        `json:"has_uid,omitempty"`
	UID     int         `json:"uid,omitempty"`
	HasGID  bool        `json:"has_gid,omitempty"`
	GID     int         `json:"gid,omitempty"`
	HasAtime bool       `json:"has_atime,omitempty"`
	Atime    time.Time  `json:"atime,omitempty"`
	HasMtime bool       `json:"has_mtime,omitempty"`
	Mtime    time.Time  `json:"mtime,omitempty"`
}

func (a sidecarAttrs) isEmpty() bool {
	return !a.HasMode && !a.HasUID && !a.HasGID && !a.HasAtime && !a.HasMtime
}

// findSidecar loads the attribute-override record for P, if one exists.
func (m *MountState) findSidecar(p string) (sidecarAttrs, bool, error) {
	f, err := m.rw.Open(sidecarPathFor(p))
	if err != nil {
		if os.IsNotExist(err) {
			return sidecarAttrs{}, false, nil
		}
		return sidecarAttrs{}, false, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return sidecarAttrs{}, false, err
	}
	if len(data) == 0 {
		return sidecarAttrs{}, true, nil
	}
	var a sidecarAttrs
	if err := json.Unmarshal(data, &a); err != nil {
		return sidecarAttrs{}, false, err
	}
	return a, true, nil
}

// createSidecar writes (or overwrites) P's attribute-override record.
func (m *MountState) createSidecar(p string, attrs sidecarAttrs) error {
	if err := m.findPath(p); err != nil {
		return err
	}
	tok := m.pushRoot()
	defer m.popRoot(tok)
	return m.createSidecarLocked(p, attrs)
}

// createSidecarLocked is createSidecar's body for callers that already
// hold the escalation section and have already materialised P's parent
// directories.
func (m *MountState) createSidecarLocked(p string, attrs sidecarAttrs) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	mePath := sidecarPathFor(p)
	f, err := m.rw.OpenFile(mePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return cerr
	}
	m.log.WithField("path", p).Debug("sidecar written")
	return tryLchown(m.rw, mePath, 0, 0)
}

// unlinkSidecar removes P's attribute-override record, if any; absence is
// not an error.
func (m *MountState) unlinkSidecar(p string) error {
	tok := m.pushRoot()
	defer m.popRoot(tok)

	err := m.rw.Remove(sidecarPathFor(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// setMetadata records an attribute delta for P, creating or updating its
// sidecar, used by setattr when P still resolves into RO (so a real
// copy-up would be needlessly expensive just to flip a permission bit).
func (m *MountState) setMetadata(p string, delta sidecarAttrs) error {
	existing, _, err := m.findSidecar(p)
	if err != nil {
		return err
	}
	if delta.HasMode {
		existing.HasMode = true
		existing.Mode = delta.Mode & validModesMask
	}
	if delta.HasUID {
		existing.HasUID = true
		existing.UID = delta.UID
	}
	if delta.HasGID {
		existing.HasGID = true
		existing.GID = delta.GID
	}
	if delta.HasAtime {
		existing.HasAtime = true
		existing.Atime = delta.Atime
	}
	if delta.HasMtime {
		existing.HasMtime = true
		existing.Mtime = delta.Mtime
	}
	return m.createSidecar(p, existing)
}

// mergeAttrs applies a sidecar's overrides onto a real os.FileInfo's
// reported mode/uid/gid, clearing VALID_MODES_MASK bits from the real mode
// before ORing in the sidecar's masked bits, matching get_full_attr's
// merge rule.
func mergeAttrs(realMode os.FileMode, realUID, realGID int, realAtime, realMtime time.Time, sc sidecarAttrs) (os.FileMode, int, int, time.Time, time.Time) {
	mode := realMode
	uid, gid := realUID, realGID
	atime, mtime := realAtime, realMtime
	if sc.HasMode {
		mode = (mode &^ validModesMask) | (sc.Mode & validModesMask)
	}
	if sc.HasUID {
		uid = sc.UID
	}
	if sc.HasGID {
		gid = sc.GID
	}
	if sc.HasAtime {
		atime = sc.Atime
	}
	if sc.HasMtime {
		mtime = sc.Mtime
	}
	return mode, uid, gid, atime, mtime
}
