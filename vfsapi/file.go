package vfsapi

import (
	"strings"
	"time"

	"github.com/PapiCZ/meowfs/vfs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrDirectoryContent = errors.New("directory content cannot be written directly")
	ErrCopyDirectory    = errors.New("directories cannot be copied")
	ErrProtectedOffset  = errors.New("offset is inside the superblock or allocation table")
)

// ReadFile returns the data of the entry at path. Directories return their
// whole listing.
func ReadFile(s *Session, path string) ([]byte, error) {
	fs, err := s.filesystem()
	if err != nil {
		return nil, err
	}

	fh, _, err := Resolve(fs, path, fs.Superblock.RootCluster())
	if err != nil {
		return nil, err
	}

	return readData(fs, fh)
}

// ReadFileHeader returns the data described by an already resolved header.
func ReadFileHeader(s *Session, fh vfs.FileHeader) ([]byte, error) {
	fs, err := s.filesystem()
	if err != nil {
		return nil, err
	}
	return readData(fs, fh)
}

func readData(fs *vfs.Filesystem, fh vfs.FileHeader) ([]byte, error) {
	data, err := fs.ReadChain(fh.FirstCluster)
	if err != nil {
		return nil, err
	}

	if fh.IsDirectory() {
		return data, nil
	}

	if int(fh.Size) > len(data) {
		return nil, vfs.NewError(vfs.CorruptionDetected, fh.DisplayName(), "size %d exceeds its %d bytes of clusters", fh.Size, len(data))
	}

	return data[:fh.Size], nil
}

func checkNewName(fh vfs.FileHeader) error {
	if len(fh.NameWithoutZeros()) == 0 {
		return vfs.NewError(vfs.InvalidPath, fh.Name, "empty name")
	}
	if fh.IsDeleted() {
		return vfs.NewError(vfs.InvalidPath, fh.Name, "names cannot start with %q", vfs.DeletedMark)
	}
	if strings.ContainsAny(fh.Name+fh.Extension, PathSeparator+".") {
		return vfs.NewError(vfs.InvalidPath, fh.DisplayName(), "name contains a separator")
	}
	_, err := fh.Encode()
	return err
}

// WriteFile creates a new entry in the directory at dirPath holding data and
// updates fh.Size and fh.FirstCluster. New directories get one empty
// cluster.
//
// The data chain is allocated before the entry is placed. When placing fails
// with RootDirectoryOutOfSpace or DiskOutOfSpace the chain stays allocated
// until Repair reclaims it.
func WriteFile(s *Session, dirPath string, fh *vfs.FileHeader, data []byte) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	err = checkNewName(*fh)
	if err != nil {
		return err
	}
	if fh.IsDirectory() && len(data) > 0 {
		return ErrDirectoryContent
	}

	dirCluster, err := resolveDirectory(fs, dirPath)
	if err != nil {
		return err
	}

	// Check for name collision
	_, err = fs.FindSlot(dirCluster, fh.Key())
	if err == nil {
		return vfs.NewError(vfs.FileAlreadyExists, Join(dirPath, fh.DisplayName()), "")
	} else if !vfs.IsKind(err, vfs.InvalidPath) {
		return err
	}

	n := fs.ClustersFor(len(data))
	if fh.IsDirectory() {
		n = 1
	}

	chain, err := fs.Fat.Allocate(n)
	if err != nil {
		return err
	}

	err = fs.WriteChain(chain, data)
	if err != nil {
		return err
	}

	fh.Size = uint32(len(data))
	fh.FirstCluster = vfs.ClusterFree
	if len(chain) > 0 {
		fh.FirstCluster = chain[0]
	}

	offset, ok, err := fs.FreeSlot(dirCluster)
	if err == nil && !ok {
		offset, err = fs.GrowDirectory(dirCluster)
	}
	if err != nil {
		_ = fs.Flush()
		return err
	}

	// The table goes first; a crash before the slot is written leaves an
	// orphan chain for repair instead of an entry pointing at free clusters.
	err = fs.Flush()
	if err != nil {
		return err
	}

	err = fs.WriteSlot(offset, *fh)
	if err != nil {
		return err
	}

	log.Debugf("wrote %s (%d bytes) into %q", fh.DisplayName(), len(data), Normalize(dirPath))

	return fs.Volume.Sync()
}

// RewriteFile replaces the data of an existing file, keeping its slot.
// Nothing changes when the new data does not fit.
func RewriteFile(s *Session, dirPath string, fh *vfs.FileHeader, data []byte) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	dirCluster, err := resolveDirectory(fs, dirPath)
	if err != nil {
		return err
	}

	slot, err := fs.FindSlot(dirCluster, fh.Key())
	if err != nil {
		return err
	}
	if slot.Header.IsDirectory() {
		return vfs.NewError(vfs.InvalidPath, Join(dirPath, fh.DisplayName()), "is a directory")
	}

	old, err := fs.Fat.Clusters(slot.Header.FirstCluster)
	if err != nil {
		return err
	}

	need := fs.ClustersFor(len(data))
	if available := fs.Fat.FreeCount() + len(old); need > available {
		return vfs.NewError(vfs.DiskOutOfSpace, Join(dirPath, fh.DisplayName()), "%d clusters requested, %d available", need, available)
	}

	err = fs.Fat.Release(slot.Header.FirstCluster)
	if err != nil {
		return err
	}

	chain, err := fs.Fat.Allocate(need)
	if err != nil {
		return err
	}

	err = fs.WriteChain(chain, data)
	if err != nil {
		return err
	}

	fh.Size = uint32(len(data))
	fh.FirstCluster = vfs.ClusterFree
	if len(chain) > 0 {
		fh.FirstCluster = chain[0]
	}

	err = fs.WriteSlot(slot.Offset, *fh)
	if err != nil {
		return err
	}

	return fs.Flush()
}

// DeleteFile tombstones the entry. Its clusters stay allocated until
// ReclaimFile or Repair, so the entry can still be restored.
func DeleteFile(s *Session, dirPath string, fh vfs.FileHeader) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	dirCluster, err := resolveDirectory(fs, dirPath)
	if err != nil {
		return err
	}

	slot, err := fs.FindSlot(dirCluster, fh.Key())
	if err != nil {
		return err
	}

	err = fs.Volume.WriteBytes(slot.Offset, []byte{vfs.DeletedMark})
	if err != nil {
		return err
	}

	log.Debugf("deleted %s in %q", fh.DisplayName(), Normalize(dirPath))

	return fs.Volume.Sync()
}

// ReclaimFile releases the clusters of a tombstoned entry, given by its
// stored name (starting with the deleted mark), and frees its slot.
func ReclaimFile(s *Session, dirPath string, deletedName string) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	dirCluster, err := resolveDirectory(fs, dirPath)
	if err != nil {
		return err
	}

	slot, err := fs.FindDeletedSlot(dirCluster, deletedName)
	if err != nil {
		return err
	}

	return reclaimSlot(fs, slot)
}

// RemoveFile is the hard delete: tombstone and reclaim in one step.
func RemoveFile(s *Session, path string) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	path = Normalize(path)
	if path == "" {
		return vfs.NewError(vfs.InvalidPath, "/", "the root directory cannot be removed")
	}

	r, err := resolve(fs, path, fs.Superblock.RootCluster())
	if err != nil {
		return err
	}

	err = fs.Volume.WriteBytes(r.Slot.Offset, []byte{vfs.DeletedMark})
	if err != nil {
		return err
	}

	return reclaimSlot(fs, r.Slot)
}

func reclaimSlot(fs *vfs.Filesystem, slot vfs.DirectorySlot) error {
	err := releaseTree(fs, slot.Header, make(map[vfs.ClusterPtr]bool))
	if err != nil {
		return err
	}

	err = fs.ClearSlot(slot.Offset)
	if err != nil {
		return err
	}

	return fs.Flush()
}

// releaseTree releases the chain of fh and, for directories, of every live
// or tombstoned entry below it.
func releaseTree(fs *vfs.Filesystem, fh vfs.FileHeader, visited map[vfs.ClusterPtr]bool) error {
	first := fh.FirstCluster
	if first == vfs.ClusterFree || visited[first] || fs.IsRoot(first) {
		return nil
	}
	visited[first] = true

	if fh.IsDirectory() {
		slots, err := fs.ReadDirectory(first)
		if err != nil {
			return err
		}

		for _, slot := range slots {
			if slot.State == vfs.SlotFree {
				continue
			}
			err = releaseTree(fs, slot.Header, visited)
			if err != nil {
				return err
			}
		}
	}

	return fs.Fat.Release(first)
}

// RestoreFile undeletes a tombstoned entry by putting first back as the
// first character of its name.
func RestoreFile(s *Session, dirPath string, deletedName string, first byte) (vfs.FileHeader, error) {
	fs, err := s.filesystem()
	if err != nil {
		return vfs.FileHeader{}, err
	}

	dirCluster, err := resolveDirectory(fs, dirPath)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	slot, err := fs.FindDeletedSlot(dirCluster, deletedName)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	restored := slot.Header
	restored.Name = string(first) + restored.Name[1:]
	err = checkNewName(restored)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	_, err = fs.FindSlot(dirCluster, restored.Key())
	if err == nil {
		return vfs.FileHeader{}, vfs.NewError(vfs.FileAlreadyExists, Join(dirPath, restored.DisplayName()), "")
	} else if !vfs.IsKind(err, vfs.InvalidPath) {
		return vfs.FileHeader{}, err
	}

	// The chain must still be intact
	_, err = fs.Fat.Clusters(restored.FirstCluster)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	err = fs.Volume.WriteBytes(slot.Offset, []byte{first})
	if err != nil {
		return vfs.FileHeader{}, err
	}

	return restored, fs.Volume.Sync()
}

// GetFileHeader looks fileName ("name.ext") up in the directory at cluster.
func GetFileHeader(s *Session, fileName string, cluster vfs.ClusterPtr) (vfs.FileHeader, error) {
	fs, err := s.filesystem()
	if err != nil {
		return vfs.FileHeader{}, err
	}

	slot, err := fs.FindSlotByName(cluster, fileName)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	return slot.Header, nil
}

func GetFileHeaderByPath(s *Session, path string) (vfs.FileHeader, error) {
	fs, err := s.filesystem()
	if err != nil {
		return vfs.FileHeader{}, err
	}

	fh, _, err := Resolve(fs, path, fs.Superblock.RootCluster())
	return fh, err
}

// GetFileHeaderOffset returns the volume offset of the slot of fileName, to
// be used with WriteBytes for in-place header updates.
func GetFileHeaderOffset(s *Session, fileName string, cluster vfs.ClusterPtr) (vfs.VolumePtr, error) {
	fs, err := s.filesystem()
	if err != nil {
		return 0, err
	}

	slot, err := fs.FindSlotByName(cluster, fileName)
	if err != nil {
		return 0, err
	}

	return slot.Offset, nil
}

// WriteBytes writes buf at offset as is. The superblock and the allocation
// table cannot be written this way.
func WriteBytes(s *Session, offset vfs.VolumePtr, buf []byte) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	if offset < fs.Superblock.RootStartAddress {
		return errors.Wrapf(ErrProtectedOffset, "offset %d", offset)
	}
	if end := offset + vfs.VolumePtr(len(buf)); end > fs.Superblock.VolumeSize() {
		return errors.Errorf("write of %d bytes at %d ends past the volume (%d bytes)", len(buf), offset, fs.Superblock.VolumeSize())
	}

	err = fs.Volume.WriteBytes(offset, buf)
	if err != nil {
		return err
	}

	return fs.Volume.Sync()
}

// Mkdir creates an empty directory at path.
func Mkdir(s *Session, path string, uid, gid uint16, now time.Time) (vfs.FileHeader, error) {
	parent, name := SplitLast(Normalize(path))

	fh, err := vfs.NewFileHeader(name, "", vfs.FlagDirectory, uid, gid, now)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	err = WriteFile(s, parent, &fh, nil)
	return fh, err
}

// Rename changes the name of the entry at path in place.
func Rename(s *Session, path string, newName string) (vfs.FileHeader, error) {
	fs, err := s.filesystem()
	if err != nil {
		return vfs.FileHeader{}, err
	}

	r, err := resolve(fs, path, fs.Superblock.RootCluster())
	if err != nil {
		return vfs.FileHeader{}, err
	}
	if r.Self {
		return vfs.FileHeader{}, vfs.NewError(vfs.InvalidPath, "/", "the root directory cannot be renamed")
	}

	updated := r.Slot.Header
	updated.Name, updated.Extension = vfs.ParseFileName(newName)
	if updated.IsDirectory() {
		updated.Extension = ""
	}
	err = checkNewName(updated)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	if updated.Key() != r.Slot.Header.Key() {
		_, err = fs.FindSlot(r.OwnerCluster, updated.Key())
		if err == nil {
			parent, _ := SplitLast(Normalize(path))
			return vfs.FileHeader{}, vfs.NewError(vfs.FileAlreadyExists, Join(parent, updated.DisplayName()), "")
		} else if !vfs.IsKind(err, vfs.InvalidPath) {
			return vfs.FileHeader{}, err
		}
	}

	err = fs.WriteSlot(r.Slot.Offset, updated)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	return updated, fs.Volume.Sync()
}

// Move relinks the entry at srcPath into the directory at dstDir. The data
// chain is not touched.
func Move(s *Session, srcPath string, dstDir string) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	srcPath = Normalize(srcPath)
	dstDir = Normalize(dstDir)

	r, err := resolve(fs, srcPath, fs.Superblock.RootCluster())
	if err != nil {
		return err
	}
	if r.Self {
		return vfs.NewError(vfs.InvalidPath, "/", "the root directory cannot be moved")
	}
	if r.Slot.Header.IsDirectory() && (dstDir == srcPath || strings.HasPrefix(dstDir, srcPath+PathSeparator)) {
		return vfs.NewError(vfs.InvalidPath, dstDir, "cannot move %s into itself", srcPath)
	}

	dstCluster, err := resolveDirectory(fs, dstDir)
	if err != nil {
		return err
	}
	if dstCluster == r.OwnerCluster {
		return nil
	}

	_, err = fs.FindSlot(dstCluster, r.Slot.Header.Key())
	if err == nil {
		return vfs.NewError(vfs.FileAlreadyExists, Join(dstDir, r.Slot.Header.DisplayName()), "")
	} else if !vfs.IsKind(err, vfs.InvalidPath) {
		return err
	}

	offset, ok, err := fs.FreeSlot(dstCluster)
	if err == nil && !ok {
		offset, err = fs.GrowDirectory(dstCluster)
	}
	if err != nil {
		return err
	}

	err = fs.WriteSlot(offset, r.Slot.Header)
	if err != nil {
		return err
	}

	err = fs.ClearSlot(r.Slot.Offset)
	if err != nil {
		return err
	}

	return fs.Flush()
}

// Copy duplicates the file at srcPath into the directory at dstDir and
// returns the new header.
func Copy(s *Session, srcPath string, dstDir string) (vfs.FileHeader, error) {
	fh, err := GetFileHeaderByPath(s, srcPath)
	if err != nil {
		return vfs.FileHeader{}, err
	}
	if fh.IsDirectory() {
		return vfs.FileHeader{}, ErrCopyDirectory
	}

	data, err := ReadFileHeader(s, fh)
	if err != nil {
		return vfs.FileHeader{}, err
	}

	clone, err := fh.Clone()
	if err != nil {
		return vfs.FileHeader{}, err
	}

	err = WriteFile(s, dstDir, &clone, data)
	return clone, err
}

// ReadDir lists the live entries of the directory at path.
func ReadDir(s *Session, path string, showHidden bool) ([]FileInfo, error) {
	fs, err := s.filesystem()
	if err != nil {
		return nil, err
	}

	dirCluster, err := resolveDirectory(fs, path)
	if err != nil {
		return nil, err
	}

	return listDirectory(fs, dirCluster, showHidden, false)
}

// ReadDeleted lists the tombstoned entries of the directory at path.
func ReadDeleted(s *Session, path string) ([]FileInfo, error) {
	fs, err := s.filesystem()
	if err != nil {
		return nil, err
	}

	dirCluster, err := resolveDirectory(fs, path)
	if err != nil {
		return nil, err
	}

	return listDirectory(fs, dirCluster, true, true)
}

func listDirectory(fs *vfs.Filesystem, cluster vfs.ClusterPtr, showHidden, deleted bool) ([]FileInfo, error) {
	slots, err := fs.ReadDirectory(cluster)
	if err != nil {
		return nil, err
	}

	want := vfs.SlotUsed
	if deleted {
		want = vfs.SlotDeleted
	}

	fileInfos := make([]FileInfo, 0)
	for _, slot := range slots {
		if slot.State != want {
			continue
		}
		if slot.Header.IsHidden() && !showHidden {
			continue
		}
		fileInfos = append(fileInfos, newFileInfo(slot))
	}

	return fileInfos, nil
}

// Repair runs the allocation table repair pass and returns the number of
// reclaimed clusters.
func Repair(s *Session) (int, error) {
	fs, err := s.filesystem()
	if err != nil {
		return 0, err
	}
	return fs.Repair()
}

// UsageInfo describes how full the volume is.
type UsageInfo struct {
	ClusterSize   int
	DataClusters  int
	FreeClusters  int
	RootEntries   int
	FreeRootSlots int
}

func (u UsageInfo) FreeBytes() int {
	return u.FreeClusters * u.ClusterSize
}

func Usage(s *Session) (UsageInfo, error) {
	fs, err := s.filesystem()
	if err != nil {
		return UsageInfo{}, err
	}

	slots, err := fs.ReadDirectory(fs.Superblock.RootCluster())
	if err != nil {
		return UsageInfo{}, err
	}

	freeSlots := 0
	for _, slot := range slots {
		if slot.State == vfs.SlotFree {
			freeSlots++
		}
	}

	return UsageInfo{
		ClusterSize:   int(fs.Superblock.ClusterSize),
		DataClusters:  fs.Superblock.DataClusterCount(),
		FreeClusters:  fs.Fat.FreeCount(),
		RootEntries:   fs.Superblock.RootEntries(),
		FreeRootSlots: freeSlots,
	}, nil
}
