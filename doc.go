// Package unionfs implements a two-branch union filesystem core: a
// read-only lower branch (RO) and a writable upper branch (RW) merged
// into a single namespace, with copy-on-write semantics for writes that
// land on an RO entry.
//
// A write to an RO-resident file triggers a copy-up into RW before the
// write proceeds; a delete of an RO-resident entry leaves a zero-length
// `.wh.<name>` whiteout marker in RW rather than touching RO at all.
// Attribute-only changes (chmod/chown/utimes) on an RO entry are recorded
// in a `.me.<name>` sidecar instead of forcing a full copy-up, and are
// folded into the RO entry's reported stat until a real write finally
// copies it up.
//
// MountState holds the state of one mount: the two branches, the
// privilege-escalation critical section guarding whiteout/sidecar
// bookkeeping, and an inode cache binding stable synthetic inode numbers
// (a fixed-seed MurmurHash2-64A of the canonical relative path) to the
// paths they were computed from. Construct one with New and the With*
// options, then drive it through the exported VFS-shaped methods
// (Lookup, Create, Mkdir, Mknod, Symlink, Link, Unlink, Rmdir, Setattr,
// Open, Readdir, Statfs) or through FileSystem() for the absfs.FileSystem
// adapter.
//
// Only exactly two branches are supported; deeper stacking, branch
// remounting, and priority reordering are out of scope.
package unionfs
