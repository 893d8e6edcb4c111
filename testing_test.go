package unionfs

import (
	"os"
	"syscall"
	"testing"

	"github.com/spf13/afero"
)

// newTestMount builds a *MountState over two fresh in-memory branches,
// following the afero.NewMemMapFs pattern the pack's own tests use.
func newTestMount(t *testing.T) *MountState {
	t.Helper()
	m, err := New(
		WithReadOnlyBranch(afero.NewMemMapFs()),
		WithWritableBranch(afero.NewMemMapFs()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func writeRO(t *testing.T, m *MountState, p string, data []byte, mode os.FileMode) {
	t.Helper()
	if err := afero.WriteFile(m.ro, p, data, mode); err != nil {
		t.Fatalf("seed RO %s: %v", p, err)
	}
}

func mkdirRO(t *testing.T, m *MountState, p string, mode os.FileMode) {
	t.Helper()
	if err := m.ro.MkdirAll(p, mode); err != nil {
		t.Fatalf("seed RO dir %s: %v", p, err)
	}
}

func writeRW(t *testing.T, m *MountState, p string, data []byte) error {
	t.Helper()
	if dir, ok := parent(p); ok {
		if err := m.rw.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return afero.WriteFile(m.rw, p, data, 0644)
}

// failOpenFS wraps a BranchFS, forcing OpenFile to fail for one exact path
// while every other call passes through untouched. afero.MemMapFs enforces
// no permission bits of its own, so this is how tests simulate a branch
// I/O failure partway through a multi-step operation.
type failOpenFS struct {
	afero.Fs
	failPath string
}

func (f *failOpenFS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.failPath {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EIO}
	}
	return f.Fs.OpenFile(name, flag, perm)
}
