package unionfs

import (
	"container/list"
	"sync"
)

// syntheticInode is the cached binding between a stable inode number and
// the relative path it was computed from, plus whether it names a
// directory (the two vtables §4.8 describes only differ by that).
type syntheticInode struct {
	Number uint64
	Path   string
	IsDir  bool
}

// inodeCache binds H(P) -> *syntheticInode, evicting least-recently-used
// entries past a configured size. This is the §4.8 inode/dentry cache,
// distinct from (and replacing) the teacher's stat/negative cache: that
// one memoized branch-level os.Stat results under a TTL, which has no
// analogue in a design whose "inode" is itself just a deterministic hash
// of the path — there is nothing to invalidate on a timer, since H(P) is
// derived from P alone and never drifts from the file it names.
type inodeCache struct {
	mu      sync.Mutex
	maxLen  int
	entries map[uint64]*list.Element
	order   *list.List // front = most recently used
}

func newInodeCache(maxLen int) *inodeCache {
	if maxLen <= 0 {
		maxLen = 4096
	}
	return &inodeCache{
		maxLen:  maxLen,
		entries: make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

// get returns the cached inode for P if present.
func (c *inodeCache) get(p string) (*syntheticInode, bool) {
	n := inodeNumber(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[n]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*syntheticInode), true
}

// put installs or refreshes the cached inode for P.
func (c *inodeCache) put(p string, isDir bool) *syntheticInode {
	n := inodeNumber(p)
	si := &syntheticInode{Number: n, Path: p, IsDir: isDir}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[n]; ok {
		el.Value = si
		c.order.MoveToFront(el)
		return si
	}
	el := c.order.PushFront(si)
	c.entries[n] = el
	for c.order.Len() > c.maxLen {
		back := c.order.Back()
		if back == nil {
			break
		}
		old := back.Value.(*syntheticInode)
		delete(c.entries, old.Number)
		c.order.Remove(back)
	}
	return si
}

// invalidate evicts the cached inode for P, used after any mutation that
// changes which branch P resolves to (copy-up, unlink, rename, ...).
func (c *inodeCache) invalidate(p string) {
	n := inodeNumber(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[n]; ok {
		delete(c.entries, n)
		c.order.Remove(el)
	}
}
