package vfs

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Filesystem struct {
	Volume     Volume
	Superblock Superblock
	Fat        *Fat
}

type FormatOptions struct {
	Label       string
	Size        VolumePtr
	ClusterSize uint16
	RootEntries int
}

// Format creates the volume file at path and writes an empty filesystem to
// it.
func Format(afs afero.Fs, path string, opts FormatOptions) (*Filesystem, error) {
	sb, err := NewPreparedSuperblock(opts.Label, opts.Size, opts.ClusterSize, opts.RootEntries)
	if err != nil {
		return nil, err
	}

	err = PrepareVolumeFile(afs, path, opts.Size)
	if err != nil {
		return nil, err
	}

	volume, err := NewVolume(afs, path)
	if err != nil {
		return nil, err
	}

	fs := NewFilesystem(volume, sb)
	err = fs.WriteStructureToVolume()
	if err != nil {
		_ = volume.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":     path,
		"clusters": sb.ClusterCount,
		"cluster":  sb.ClusterSize,
		"root":     sb.RootEntries(),
	}).Info("formatted volume")

	return fs, nil
}

// NewFilesystem returns a filesystem with an empty allocation table for sb.
func NewFilesystem(volume Volume, sb Superblock) *Filesystem {
	return &Filesystem{
		Volume:     volume,
		Superblock: sb,
		Fat:        NewFat(int(sb.ClusterCount), sb.FirstDataCluster()),
	}
}

func LoadFilesystem(volume Volume) (*Filesystem, error) {
	sb, err := LoadSuperblock(volume)
	if err != nil {
		return nil, err
	}

	fat, err := LoadFat(volume, sb)
	if err != nil {
		return nil, err
	}

	return &Filesystem{
		Volume:     volume,
		Superblock: sb,
		Fat:        fat,
	}, nil
}

func (f *Filesystem) WriteStructureToVolume() error {
	err := f.Volume.WriteStruct(0, f.Superblock)
	if err != nil {
		return err
	}

	// Empty root directory
	err = f.Volume.WriteBytes(f.Superblock.RootStartAddress, make([]byte, f.Superblock.RootSize))
	if err != nil {
		return err
	}

	return f.Flush()
}

// Flush writes the allocation table back if it changed.
func (f *Filesystem) Flush() error {
	err := f.Fat.Save(f.Volume, f.Superblock)
	if err != nil {
		return err
	}
	return f.Volume.Sync()
}

func (f *Filesystem) Close() error {
	err := f.Flush()
	if err != nil {
		_ = f.Volume.Close()
		return err
	}
	return f.Volume.Close()
}

func (f *Filesystem) ZeroCluster(c ClusterPtr) error {
	return f.Volume.WriteBytes(ClusterPtrToVolumePtr(f.Superblock, c), make([]byte, f.Superblock.ClusterSize))
}

// ReadChain returns the content of every cluster of the chain at first. The
// root cluster returns the whole root region.
func (f *Filesystem) ReadChain(first ClusterPtr) ([]byte, error) {
	if first == ClusterFree {
		return []byte{}, nil
	}

	clusters, err := f.directoryClusters(first)
	if err != nil {
		return nil, err
	}

	cs := int(f.Superblock.ClusterSize)
	data := make([]byte, len(clusters)*cs)
	for i, c := range clusters {
		err = f.Volume.ReadBytes(ClusterPtrToVolumePtr(f.Superblock, c), data[i*cs:(i+1)*cs])
		if err != nil {
			return nil, err
		}
	}

	return data, nil
}

// WriteChain spreads data over the clusters of chain, zero filling the tail
// of the last cluster.
func (f *Filesystem) WriteChain(chain []ClusterPtr, data []byte) error {
	cs := int(f.Superblock.ClusterSize)
	if len(data) > len(chain)*cs {
		return errors.Errorf("%d bytes do not fit into %d clusters", len(data), len(chain))
	}

	buf := make([]byte, cs)
	for i, c := range chain {
		start := i * cs
		end := start + cs
		if end > len(data) {
			end = len(data)
		}

		for j := range buf {
			buf[j] = 0
		}
		if start < end {
			copy(buf, data[start:end])
		}

		err := f.Volume.WriteBytes(ClusterPtrToVolumePtr(f.Superblock, c), buf)
		if err != nil {
			return err
		}
	}

	return nil
}

// ClustersFor returns how many clusters hold size bytes.
func (f *Filesystem) ClustersFor(size int) int {
	return clustersForSize(f.Superblock, size)
}

// Repair rebuilds the used/free view of the allocation table from the
// directory tree. Tombstoned entries become free slots, and every used
// cluster that no live entry reaches is freed. It returns the number of
// reclaimed clusters.
func (f *Filesystem) Repair() (int, error) {
	marks := NewBitmap(f.Fat.Len())
	visited := make(map[ClusterPtr]bool)

	cleared, err := f.markDirectory(f.Superblock.RootCluster(), marks, visited)
	if err != nil {
		return 0, err
	}

	reclaimed := f.Fat.Repair(marks)

	log.WithFields(log.Fields{
		"reclaimed": reclaimed,
		"cleared":   cleared,
		"free":      f.Fat.FreeCount(),
	}).Info("repaired allocation table")

	return reclaimed, f.Flush()
}

func (f *Filesystem) markDirectory(cluster ClusterPtr, marks Bitmap, visited map[ClusterPtr]bool) (int, error) {
	if visited[cluster] {
		return 0, nil
	}
	visited[cluster] = true

	slots, err := f.ReadDirectory(cluster)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, slot := range slots {
		switch slot.State {
		case SlotDeleted:
			err = f.ClearSlot(slot.Offset)
			if err != nil {
				return cleared, err
			}
			cleared++
		case SlotUsed:
			first := slot.Header.FirstCluster
			if first == ClusterFree {
				continue
			}

			// An entry whose first cluster is not in use would end up sharing
			// it with the next allocation.
			if f.Fat.MarkChain(first, marks) == 0 && !marks.IsSet(int(first)) {
				log.Warnf("clearing entry %q with broken chain at cluster %d", slot.Header.DisplayName(), first)
				err = f.ClearSlot(slot.Offset)
				if err != nil {
					return cleared, err
				}
				cleared++
				continue
			}

			if slot.Header.IsDirectory() {
				n, err := f.markDirectory(first, marks, visited)
				cleared += n
				if err != nil {
					return cleared, err
				}
			}
		}
	}

	return cleared, nil
}
