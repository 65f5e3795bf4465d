package vfs

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ClusterPtr uint16

const (
	ClusterFree       ClusterPtr = 0x0000
	ClusterReserved   ClusterPtr = 0xFFFE
	ClusterEndOfChain ClusterPtr = 0xFFFF
)

// Fat is the in-memory copy of the cluster allocation table. It is loaded
// once per session and written back by Save.
type Fat struct {
	entries   []ClusterPtr
	firstData ClusterPtr
	dirty     bool
}

// NewFat returns a table of count clusters where every cluster below
// firstData is reserved for metadata and the rest are free.
func NewFat(count int, firstData ClusterPtr) *Fat {
	f := &Fat{
		entries:   make([]ClusterPtr, count),
		firstData: firstData,
		dirty:     true,
	}
	for i := 0; i < int(firstData) && i < count; i++ {
		f.entries[i] = ClusterReserved
	}
	return f
}

func LoadFat(volume Volume, sb Superblock) (*Fat, error) {
	entries := make([]ClusterPtr, sb.ClusterCount)
	err := volume.ReadStruct(sb.FatStartAddress, entries)
	if err != nil {
		return nil, NewError(CorruptionDetected, volume.Name(), "unreadable allocation table: %v", err)
	}

	return &Fat{
		entries:   entries,
		firstData: sb.FirstDataCluster(),
	}, nil
}

func (f *Fat) Save(volume Volume, sb Superblock) error {
	if !f.dirty {
		return nil
	}

	err := volume.WriteStruct(sb.FatStartAddress, f.entries)
	if err != nil {
		return errors.Wrap(err, "saving allocation table")
	}
	f.dirty = false

	return nil
}

func (f *Fat) Len() int {
	return len(f.entries)
}

func (f *Fat) Dirty() bool {
	return f.dirty
}

func (f *Fat) isDataCluster(c ClusterPtr) bool {
	return c >= f.firstData && int(c) < len(f.entries)
}

func (f *Fat) Get(c ClusterPtr) (ClusterPtr, error) {
	if int(c) >= len(f.entries) {
		return 0, OutOfRange{int(c), len(f.entries) - 1}
	}
	return f.entries[c], nil
}

// Set overwrites a raw table entry.
func (f *Fat) Set(c ClusterPtr, value ClusterPtr) error {
	if int(c) >= len(f.entries) {
		return OutOfRange{int(c), len(f.entries) - 1}
	}
	f.entries[c] = value
	f.dirty = true
	return nil
}

func (f *Fat) FreeCount() int {
	free := 0
	for c := int(f.firstData); c < len(f.entries); c++ {
		if f.entries[c] == ClusterFree {
			free++
		}
	}
	return free
}

// ChainIterator walks a cluster chain lazily.
//
//	it := fat.Chain(first)
//	for it.Next() {
//		c := it.Cluster()
//	}
//	err := it.Err()
type ChainIterator struct {
	fat     *Fat
	next    ClusterPtr
	current ClusterPtr
	steps   int
	last    bool
	err     error
}

func (f *Fat) Chain(first ClusterPtr) *ChainIterator {
	return &ChainIterator{
		fat:  f,
		next: first,
		last: first == ClusterFree,
	}
}

func (it *ChainIterator) Next() bool {
	if it.last || it.err != nil {
		return false
	}

	c := it.next
	if !it.fat.isDataCluster(c) {
		it.err = it.corruption(c, "link to cluster %d outside the data region", c)
		return false
	}

	it.steps++
	if it.steps > len(it.fat.entries) {
		it.err = it.corruption(c, "chain is longer than the volume")
		return false
	}

	switch v := it.fat.entries[c]; v {
	case ClusterFree:
		it.err = it.corruption(c, "chain runs into free cluster %d", c)
		return false
	case ClusterReserved:
		it.err = it.corruption(c, "chain runs into reserved cluster %d", c)
		return false
	case ClusterEndOfChain:
		it.last = true
	default:
		if v == c {
			it.err = it.corruption(c, "cluster %d links to itself", c)
			return false
		}
		it.next = v
	}

	it.current = c
	return true
}

func (it *ChainIterator) Cluster() ClusterPtr {
	return it.current
}

func (it *ChainIterator) Err() error {
	return it.err
}

func (it *ChainIterator) corruption(c ClusterPtr, format string, args ...interface{}) error {
	return NewError(CorruptionDetected, fmt.Sprintf("cluster %d", c), format, args...)
}

// Clusters collects the whole chain starting at first.
func (f *Fat) Clusters(first ClusterPtr) ([]ClusterPtr, error) {
	chain := make([]ClusterPtr, 0)
	it := f.Chain(first)
	for it.Next() {
		chain = append(chain, it.Cluster())
	}
	return chain, it.Err()
}

// Allocate links n free clusters, first fit in table order. The table is
// left untouched when fewer than n clusters are free.
func (f *Fat) Allocate(n int) ([]ClusterPtr, error) {
	if n <= 0 {
		return nil, nil
	}

	chain := make([]ClusterPtr, 0, n)
	for c := int(f.firstData); c < len(f.entries) && len(chain) < n; c++ {
		if f.entries[c] == ClusterFree {
			chain = append(chain, ClusterPtr(c))
		}
	}

	if len(chain) < n {
		return nil, NewError(DiskOutOfSpace, "", "%d clusters requested, %d free", n, len(chain))
	}

	for i := 0; i < len(chain)-1; i++ {
		f.entries[chain[i]] = chain[i+1]
	}
	f.entries[chain[len(chain)-1]] = ClusterEndOfChain
	f.dirty = true

	log.Debugf("allocated %d clusters starting at %d", n, chain[0])

	return chain, nil
}

// Extend appends n clusters to the tail of the chain starting at first and
// returns the appended clusters.
func (f *Fat) Extend(first ClusterPtr, n int) ([]ClusterPtr, error) {
	if first == ClusterFree {
		return f.Allocate(n)
	}

	chain, err := f.Clusters(first)
	if err != nil {
		return nil, err
	}

	appended, err := f.Allocate(n)
	if err != nil || len(appended) == 0 {
		return nil, err
	}

	f.entries[chain[len(chain)-1]] = appended[0]

	return appended, nil
}

// Release frees every cluster of the chain. It stops at the first free
// cluster, which makes releasing an already released chain a no-op.
func (f *Fat) Release(first ClusterPtr) error {
	c := first
	released := 0
	for c != ClusterFree {
		if !f.isDataCluster(c) {
			return NewError(CorruptionDetected, fmt.Sprintf("cluster %d", c), "release reached cluster outside the data region after %d clusters", released)
		}

		next := f.entries[c]
		if next == ClusterFree {
			break
		}
		if next == ClusterReserved {
			return NewError(CorruptionDetected, fmt.Sprintf("cluster %d", c), "release reached reserved marker")
		}

		f.entries[c] = ClusterFree
		f.dirty = true
		released++

		if next == ClusterEndOfChain {
			break
		}
		c = next
	}

	if released > 0 {
		log.Debugf("released %d clusters starting at %d", released, first)
	}

	return nil
}

// MarkChain sets the bit of every cluster of the chain in marks and returns
// the number of clusters marked. A chain that leaves the data region, runs
// into a free cluster or loops back on itself is cut with an end of chain
// marker at its last good cluster. Clusters already marked by another chain
// end the walk without cutting.
func (f *Fat) MarkChain(first ClusterPtr, marks Bitmap) int {
	seen := make(map[ClusterPtr]bool)
	marked := 0
	prev := ClusterFree
	c := first

	for c != ClusterFree {
		bad := !f.isDataCluster(c) || seen[c]
		if !bad {
			v := f.entries[c]
			bad = v == ClusterFree || v == ClusterReserved
		}
		if bad {
			if prev != ClusterFree {
				log.Warnf("cutting broken chain %d at cluster %d", first, prev)
				f.entries[prev] = ClusterEndOfChain
				f.dirty = true
			}
			break
		}
		if marks.IsSet(int(c)) {
			break
		}

		seen[c] = true
		_ = marks.SetBit(int(c), 1)
		marked++

		v := f.entries[c]
		if v == ClusterEndOfChain {
			break
		}
		prev = c
		c = v
	}

	return marked
}

// Repair frees every used data cluster that is not set in reachable and
// returns how many clusters were reclaimed.
func (f *Fat) Repair(reachable Bitmap) int {
	reclaimed := 0
	for c := int(f.firstData); c < len(f.entries); c++ {
		if f.entries[c] != ClusterFree && !reachable.IsSet(c) {
			f.entries[c] = ClusterFree
			reclaimed++
		}
	}

	if reclaimed > 0 {
		f.dirty = true
	}

	return reclaimed
}
