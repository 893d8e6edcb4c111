package unionfs

import (
	"os"
	"testing"
)

// TestScenarioWhiteoutHidesROFile is end-to-end scenario 1: unlinking an
// RO-resident file leaves a whiteout and hides it from lookup/readdir.
func TestScenarioWhiteoutHidesROFile(t *testing.T) {
	m := newTestMount(t)
	writeRO(t, m, "/a", []byte("x"), 0644)

	if err := m.Unlink("/a", root); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	info, err := m.rw.Stat("/.wh.a")
	if err != nil {
		t.Fatalf("stat whiteout: %v", err)
	}
	if info.Mode().Perm() != 0400 {
		t.Errorf("whiteout mode = %v, want 0400", info.Mode().Perm())
	}

	if _, _, err := m.Lookup("/a"); err != ErrNotExist {
		t.Errorf("Lookup after unlink = %v, want ErrNotExist", err)
	}
	entries, err := m.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	for _, e := range entries {
		if e.Name == "a" {
			t.Fatal("readdir should not list a whited-out name")
		}
	}
}

// TestScenarioSidecarReplacesCopyUpForChmod is scenario 2.
func TestScenarioSidecarReplacesCopyUpForChmod(t *testing.T) {
	m := newTestMount(t)
	writeRO(t, m, "/b", []byte("x"), 0644)

	if err := m.Setattr("/b", sidecarAttrs{HasMode: true, Mode: 0600}, root); err != nil {
		t.Fatalf("Setattr: %v", err)
	}

	if _, err := m.rw.Stat("/b"); !os.IsNotExist(err) {
		t.Errorf("/rw/b should not exist yet, stat err=%v", err)
	}
	if _, err := m.rw.Stat("/.me.b"); err != nil {
		t.Errorf("/rw/.me.b should exist: %v", err)
	}
	info, err := m.Getattr("/b")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("effective mode = %v, want 0600", info.Mode().Perm())
	}
}

// TestScenarioCopyUpOnWriteRetiresSidecar is scenario 3, continuing 2.
func TestScenarioCopyUpOnWriteRetiresSidecar(t *testing.T) {
	m := newTestMount(t)
	writeRO(t, m, "/b", []byte("x"), 0644)
	if err := m.Setattr("/b", sidecarAttrs{HasMode: true, Mode: 0600}, root); err != nil {
		t.Fatal(err)
	}

	f, err := m.Open("/b", os.O_WRONLY, root)
	if err != nil {
		t.Fatalf("Open for write: %v", err)
	}
	if _, err := f.Write([]byte("y")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := m.rw.Stat("/b")
	if err != nil {
		t.Fatalf("/rw/b should exist: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("copy mode = %v, want 0600", info.Mode().Perm())
	}
	if info.Size() != 1 {
		t.Errorf("copy size = %d, want 1", info.Size())
	}
	if _, err := m.rw.Stat("/.me.b"); !os.IsNotExist(err) {
		t.Errorf("sidecar should be retired, stat err=%v", err)
	}
	roData, err := readAll(m.ro, "/b")
	if err != nil || string(roData) != "x" {
		t.Errorf("RO copy should be untouched: %q, err=%v", roData, err)
	}
}

// TestScenarioDirectoryMasking is scenario 4.
func TestScenarioDirectoryMasking(t *testing.T) {
	m := newTestMount(t)
	mkdirRO(t, m, "/d", 0755)
	writeRO(t, m, "/d/x", []byte("1"), 0644)

	// Rmdir requires /d to be empty in the union, so its RO child is
	// unlinked (whited out) first.
	if err := m.Unlink("/d/x", root); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := m.Rmdir("/d", root); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if err := m.Mkdir("/d", 0755, root); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if _, err := m.rw.Stat("/d"); err != nil {
		t.Fatalf("/rw/d should exist: %v", err)
	}
	if _, err := m.rw.Stat("/.wh.d"); !os.IsNotExist(err) {
		t.Errorf("/rw/.wh.d should not exist after recreation, err=%v", err)
	}
	entries, err := m.Readdir("/d")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("readdir(/d) should be empty, got %v", entries)
	}
}

// TestScenarioHardLinkFallsBackToSymlink is scenario 5.
func TestScenarioHardLinkFallsBackToSymlink(t *testing.T) {
	m := newTestMount(t)
	m.roBasePath = "/ro"
	writeRO(t, m, "/e", []byte("x"), 0644)

	if err := m.Link("/e", "/f", root); err != nil {
		t.Fatalf("Link: %v", err)
	}

	target, err := tryReadlink(m.rw, "/f")
	if err != nil {
		t.Fatalf("expected /rw/f to be a symlink: %v", err)
	}
	if target != "/ro/e" {
		t.Errorf("symlink target = %q, want /ro/e", target)
	}
	if _, err := m.rw.Stat("/.wh.f"); !os.IsNotExist(err) {
		t.Errorf("/rw/.wh.f should not exist, err=%v", err)
	}
}

// TestScenarioUnionReaddirOrdering is scenario 6.
func TestScenarioUnionReaddirOrdering(t *testing.T) {
	m := newTestMount(t)
	if err := writeRW(t, m, "/a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	writeRO(t, m, "/b", []byte("2"), 0644)
	writeRO(t, m, "/c", []byte("3"), 0644)
	if err := m.createWhiteout("/c"); err != nil {
		t.Fatal(err)
	}
	if err := m.createSidecar("/a", sidecarAttrs{HasMode: true, Mode: 0600}); err != nil {
		t.Fatal(err)
	}

	entries, err := m.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	names := make([]string, len(entries))
	var aIno uint64
	for i, e := range entries {
		names[i] = e.Name
		if e.Name == "a" {
			aIno = e.Inode
		}
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("readdir(/) = %v, want exactly [a b]", names)
	}
	if aIno != inodeNumber("/a") {
		t.Errorf("inode of a = %d, want H(/a) = %d", aIno, inodeNumber("/a"))
	}
}

// TestRoundTripUnlinkThenCreateNoWhiteout checks the RW-only round trip:
// no whiteout should be introduced when the removed entry was RW-only.
func TestRoundTripUnlinkThenCreateNoWhiteout(t *testing.T) {
	m := newTestMount(t)
	if err := m.Create("/x", 0644, root); err != nil {
		t.Fatal(err)
	}
	if err := m.Unlink("/x", root); err != nil {
		t.Fatal(err)
	}
	if found, _ := m.findWhiteout("/x"); found {
		t.Error("unlinking an RW-only entry should not create a whiteout")
	}
	if err := m.Create("/x", 0644, root); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if _, _, err := m.Lookup("/x"); err != nil {
		t.Fatalf("Lookup after recreate: %v", err)
	}
}

func readAll(b BranchFS, p string) ([]byte, error) {
	f, err := b.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 0, 16)
	tmp := make([]byte, 16)
	for {
		n, err := f.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}
