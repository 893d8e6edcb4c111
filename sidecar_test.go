package unionfs

import (
	"os"
	"testing"
	"time"
)

var timeZero = time.Time{}

func TestCreateAndFindSidecar(t *testing.T) {
	m := newTestMount(t)
	attrs := sidecarAttrs{HasMode: true, Mode: 0600, HasUID: true, UID: 42}

	if err := m.createSidecar("/a.txt", attrs); err != nil {
		t.Fatalf("createSidecar: %v", err)
	}

	got, ok, err := m.findSidecar("/a.txt")
	if err != nil || !ok {
		t.Fatalf("findSidecar: ok=%v err=%v", ok, err)
	}
	if !got.HasMode || got.Mode != 0600 {
		t.Errorf("sidecar mode = %v, want 0600", got.Mode)
	}
	if !got.HasUID || got.UID != 42 {
		t.Errorf("sidecar uid = %v, want 42", got.UID)
	}
}

func TestSetMetadataMerges(t *testing.T) {
	m := newTestMount(t)
	if err := m.setMetadata("/a.txt", sidecarAttrs{HasMode: true, Mode: 0600}); err != nil {
		t.Fatalf("setMetadata mode: %v", err)
	}
	if err := m.setMetadata("/a.txt", sidecarAttrs{HasUID: true, UID: 7}); err != nil {
		t.Fatalf("setMetadata uid: %v", err)
	}
	got, ok, err := m.findSidecar("/a.txt")
	if err != nil || !ok {
		t.Fatalf("findSidecar: ok=%v err=%v", ok, err)
	}
	if !got.HasMode || got.Mode != 0600 {
		t.Errorf("expected merged mode 0600, got %v", got.Mode)
	}
	if !got.HasUID || got.UID != 7 {
		t.Errorf("expected merged uid 7, got %v", got.UID)
	}
}

func TestMergeAttrsMasksModeBitsOnly(t *testing.T) {
	realMode := os.ModeDir | 0755
	sc := sidecarAttrs{HasMode: true, Mode: 0700}
	mode, _, _, _, _ := mergeAttrs(realMode, 0, 0, timeZero, timeZero, sc)
	if mode&os.ModeDir == 0 {
		t.Error("merge should not clear the directory type bit")
	}
	if mode.Perm() != 0700 {
		t.Errorf("merged perm = %v, want 0700", mode.Perm())
	}
}
