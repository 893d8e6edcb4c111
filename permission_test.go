package unionfs

import "testing"

func TestCanAccessOwnerTriad(t *testing.T) {
	cred := Credentials{UID: 100, GID: 100}
	if !canAccess(cred, 0640, 100, 100, AccessRead) {
		t.Error("owner should have read access under 0640")
	}
	if canAccess(cred, 0640, 100, 100, AccessWrite) == false {
		t.Error("owner should have write access under 0640")
	}
	if canAccess(cred, 0640, 100, 100, AccessExecute) {
		t.Error("owner should not have execute access under 0640")
	}
}

func TestCanAccessOtherTriad(t *testing.T) {
	cred := Credentials{UID: 200, GID: 200}
	if canAccess(cred, 0640, 100, 100, AccessRead) {
		t.Error("others should not have read access under 0640")
	}
	if !canAccess(cred, 0644, 100, 100, AccessRead) {
		t.Error("others should have read access under 0644")
	}
}

func TestCanAccessRootBypassesExceptExecute(t *testing.T) {
	root := Credentials{UID: 0, GID: 0}
	if !canAccess(root, 0000, 100, 100, AccessRead) {
		t.Error("root should read anything")
	}
	if !canAccess(root, 0000, 100, 100, AccessWrite) {
		t.Error("root should write anything")
	}
	if canAccess(root, 0000, 100, 100, AccessExecute) {
		t.Error("root still needs some execute bit set to execute/traverse")
	}
	if !canAccess(root, 0100, 100, 100, AccessExecute) {
		t.Error("root should execute once any execute bit is present")
	}
}

func TestCanTraverseRequiresExecuteOnEveryAncestor(t *testing.T) {
	m := newTestMount(t)
	mkdirRO(t, m, "/a/b", 0700)
	if err := m.ro.Chmod("/a", 0600); err != nil {
		t.Fatal(err)
	}
	cred := Credentials{UID: 1, GID: 1}
	ok, err := m.canTraverse(cred, "/a/b/c.txt")
	if err != nil {
		t.Fatalf("canTraverse: %v", err)
	}
	if ok {
		t.Error("traversal should fail without execute on /a")
	}
}

func TestCanRemoveDelegatesToParentWrite(t *testing.T) {
	m := newTestMount(t)
	mkdirRO(t, m, "/dir", 0555)
	writeRO(t, m, "/dir/f", []byte("x"), 0644)

	cred := Credentials{UID: 1, GID: 1}
	ok, err := m.canRemove(cred, "/dir/f")
	if err != nil {
		t.Fatalf("canRemove: %v", err)
	}
	if ok {
		t.Error("removal should fail without write on the parent directory")
	}
}
