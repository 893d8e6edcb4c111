package unionfs

import (
	"io"
	"os"
	"sort"
)

// DirEntry is one union-merged directory entry: a real name, its merged
// mode, and the stable synthetic inode number H(P/name) assigns it.
type DirEntry struct {
	Name  string
	Mode  os.FileMode
	Inode uint64
}

// readdir merges the RW and RO listings of the directory at P exactly as
// the source this design distills does: RW entries win outright (skipping
// its own `.wh.`/`.me.` bookkeeping files and recording which basenames
// they hide), then RO entries are added except those a whiteout hides or
// that RW already shadowed by name.
func (m *MountState) readdir(p string) ([]DirEntry, error) {
	res, err := m.lookupReadOnly(p)
	if err != nil {
		return nil, err
	}
	if !res.Info.IsDir() {
		return nil, ErrNotDirectory
	}

	seen := make(map[string]bool)
	whiteouts := make(map[string]bool)
	var out []DirEntry

	if rwDir, err := m.rw.Open(p); err == nil {
		entries, rerr := rwDir.Readdir(-1)
		rwDir.Close()
		if rerr != nil && rerr != io.EOF {
			return nil, rerr
		}
		for _, e := range entries {
			name := e.Name()
			if isSpecialName(name) {
				continue
			}
			if isWhiteoutName(name) {
				whiteouts[whiteoutBase(name)] = true
				continue
			}
			if isSidecarName(name) {
				continue
			}
			seen[name] = true
			out = append(out, DirEntry{
				Name:  name,
				Mode:  e.Mode(),
				Inode: inodeNumber(path2(p, name)),
			})
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if roDir, err := m.ro.Open(p); err == nil {
		entries, rerr := roDir.Readdir(-1)
		roDir.Close()
		if rerr != nil && rerr != io.EOF {
			return nil, rerr
		}
		for _, e := range entries {
			name := e.Name()
			if isSpecialName(name) || isWhiteoutName(name) || isSidecarName(name) {
				continue
			}
			if seen[name] || whiteouts[name] {
				continue
			}
			out = append(out, DirEntry{
				Name:  name,
				Mode:  e.Mode(),
				Inode: inodeNumber(path2(p, name)),
			})
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
