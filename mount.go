package unionfs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// rootToken marks that the current call chain already holds the
// privilege-escalation critical section. It is the idiomatic-Go stand-in
// for the original source's per-thread reentrancy tracking: rather than
// recording (thread, depth, saved_uid, saved_gid) and comparing the
// current thread against an owner field — Go has no stable, exposed
// goroutine identity to key that on — callers that already hold escalation
// pass their token down to internal helpers, and a helper only acquires
// the section itself when it is not handed one. See DESIGN.md for the
// rationale.
type rootToken struct{}

// pushRoot acquires the escalation critical section and returns a token
// proving it, mirroring push_root()'s save-credentials-and-lock step. The
// original also swaps the calling thread's fsuid/fsgid for root's; this
// port has no analogous per-call identity to swap (the process either can
// or cannot write the branch paths), so pushRoot's role is reduced to what
// actually matters in a library context: serializing the handful of
// operations — whiteout and sidecar creation, path materialisation — that
// must run as a single atomic step with respect to other goroutines.
func (m *MountState) pushRoot() *rootToken {
	m.escMu.Lock()
	return &rootToken{}
}

// popRoot releases the section acquired by pushRoot.
func (m *MountState) popRoot(*rootToken) {
	m.escMu.Unlock()
}

// withRoot runs fn while holding the escalation section, unless tok is
// already non-nil (the caller already holds it), in which case fn runs
// immediately with the caller's token — this is the reentrant case.
func (m *MountState) withRoot(tok *rootToken, fn func(*rootToken) error) error {
	if tok != nil {
		return fn(tok)
	}
	t := m.pushRoot()
	defer m.popRoot(t)
	return fn(t)
}

// MountState is the super-block-scoped state of a union mount: the two
// branches, the privilege-escalation critical section, the inode cache
// binding inode numbers to the relative paths they were computed from,
// the logger, and the copy-up buffer size.
type MountState struct {
	ro BranchFS
	rw BranchFS

	roBasePath string

	escMu sync.Mutex

	cache *inodeCache

	log            *logrus.Logger
	copyBufferSize int
}

// branchPath returns the real filesystem path a cross-branch symlink
// fallback (see Link) should point at: roBasePath joined with P when the
// caller has told the mount where the RO branch actually lives on disk,
// or just P otherwise — a relative-path fallback for branches with no
// real on-disk root (an in-memory branch, say), which a real kernel
// mount never has to consider.
func (m *MountState) branchPath(b BranchFS, p string) string {
	if b == m.ro && m.roBasePath != "" {
		return m.roBasePath + p
	}
	return p
}

// Option configures a MountState at construction time.
type Option func(*MountState)

// WithReadOnlyBranch sets the lower, immutable branch.
func WithReadOnlyBranch(fs BranchFS) Option {
	return func(m *MountState) { m.ro = fs }
}

// WithWritableBranch sets the upper, mutable branch.
func WithWritableBranch(fs BranchFS) Option {
	return func(m *MountState) { m.rw = fs }
}

// WithReadOnlyBranchPath records the RO branch's real filesystem root, so
// Link's cross-branch symlink fallback can point at an absolute branch
// path (the source this design distills always can, since its branches
// are real mounted directories). Unnecessary for in-memory branches.
func WithReadOnlyBranchPath(path string) Option {
	return func(m *MountState) { m.roBasePath = path }
}

// WithLogger overrides the structured logger used for resolver, copy-up,
// and whiteout/sidecar lifecycle events. Defaults to logrus's standard
// logger.
func WithLogger(log *logrus.Logger) Option {
	return func(m *MountState) { m.log = log }
}

// WithCopyBufferSize sets the buffer size used when streaming a regular
// file through the copy-up engine. Defaults to MAXSIZE (4096), matching
// the constant the source this design distills uses for its copy-up
// buffer.
func WithCopyBufferSize(n int) Option {
	return func(m *MountState) { m.copyBufferSize = n }
}

// WithInodeCacheSize bounds the number of inodes held live in the cache
// before the oldest is evicted.
func WithInodeCacheSize(n int) Option {
	return func(m *MountState) { m.cache = newInodeCache(n) }
}

// ErrNoBranches is returned by New when either branch was not supplied.
var ErrNoBranches = ErrInvalid

// New constructs a union mount from the two required branches plus any
// options. Both WithReadOnlyBranch and WithWritableBranch must be given.
func New(opts ...Option) (*MountState, error) {
	m := &MountState{
		copyBufferSize: 4096, // MAXSIZE
		cache:          newInodeCache(4096),
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ro == nil || m.rw == nil {
		return nil, ErrNoBranches
	}
	return m, nil
}
