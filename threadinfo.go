package art

import "github.com/sirgallo/art/epoch"

// cacheLinePad is sized to push PaddedThreadInfo entries onto separate
// cache lines so concurrent threads updating their own ThreadInfo don't
// false-share, mirroring PaddedThreadInfo in
// original_source/src/include/concurrency/epoch_manager.h.
const cacheLinePad = 64

// ThreadInfo bundles one goroutine's epoch participation record with its
// private deletion list, the two pieces of per-thread state every
// Tree operation touches.
type ThreadInfo struct {
	Local    *epoch.Local
	Deletes  *DeletionList
}

// PaddedThreadInfo is ThreadInfo plus trailing padding so an array of
// them doesn't share cache lines across goroutines.
type PaddedThreadInfo struct {
	ThreadInfo
	_ [cacheLinePad]byte
}

func newThreadInfo(mgr *epoch.Manager) *PaddedThreadInfo {
	return &PaddedThreadInfo{ThreadInfo: ThreadInfo{
		Local:   mgr.Register(),
		Deletes: newDeletionList(),
	}}
}
