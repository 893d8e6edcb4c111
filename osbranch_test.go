package unionfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// newOSTestMount builds a *MountState over two fresh, uniquely-named
// temporary directories on the real filesystem, exercising the branch
// capabilities (symlinks, lchown) an in-memory afero.MemMapFs branch
// does not implement. Each branch gets its own uuid-suffixed directory
// so parallel test runs never collide on a shared temp root.
func newOSTestMount(t *testing.T) (*MountState, string, string) {
	t.Helper()
	base := t.TempDir()
	roPath := filepath.Join(base, "ro-"+uuid.NewString())
	rwPath := filepath.Join(base, "rw-"+uuid.NewString())
	for _, p := range []string{roPath, rwPath} {
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
	}

	m, err := New(
		WithReadOnlyBranch(afero.NewBasePathFs(afero.NewOsFs(), roPath)),
		WithWritableBranch(afero.NewBasePathFs(afero.NewOsFs(), rwPath)),
		WithReadOnlyBranchPath(roPath),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, roPath, rwPath
}

func TestOSBranchCopyUpPreservesSymlink(t *testing.T) {
	m, roPath, _ := newOSTestMount(t)
	if err := os.Symlink("target", filepath.Join(roPath, "link")); err != nil {
		t.Fatalf("seed RO symlink: %v", err)
	}

	if err := m.copyUp("/link"); err != nil {
		t.Fatalf("copyUp: %v", err)
	}

	target, err := tryReadlink(m.rw, "/link")
	if err != nil {
		t.Fatalf("readlink RW copy: %v", err)
	}
	if target != "target" {
		t.Errorf("symlink target = %q, want %q", target, "target")
	}
}

func TestOSBranchLinkFallsBackToAbsoluteSymlink(t *testing.T) {
	m, roPath, _ := newOSTestMount(t)
	if err := os.WriteFile(filepath.Join(roPath, "e"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.Link("/e", "/f", root); err != nil {
		t.Fatalf("Link: %v", err)
	}

	target, err := tryReadlink(m.rw, "/f")
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != roPath+"/e" {
		t.Errorf("symlink target = %q, want %q", target, roPath+"/e")
	}
}
