package vfs

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

type SlotState int

const (
	SlotFree SlotState = iota
	SlotUsed
	SlotDeleted
)

// DirectorySlot is one 32 byte position of a directory listing.
type DirectorySlot struct {
	Offset VolumePtr
	Header FileHeader
	State  SlotState
}

type Key [NameMaxLength + ExtensionMaxLength]byte

// LookupKey builds the padded key of "name.ext". ok is false when the name
// cannot be stored at all.
func LookupKey(fileName string) (Key, bool) {
	name, extension := ParseFileName(fileName)
	if len(name) == 0 || len(name) > NameMaxLength || len(extension) > ExtensionMaxLength {
		return Key{}, false
	}
	return FileHeader{Name: name, Extension: extension}.Key(), true
}

func slotState(raw []byte) SlotState {
	switch raw[0] {
	case 0:
		return SlotFree
	case DeletedMark:
		return SlotDeleted
	default:
		return SlotUsed
	}
}

func (f *Filesystem) IsRoot(cluster ClusterPtr) bool {
	return cluster == f.Superblock.RootCluster()
}

// directoryClusters returns the clusters holding the listing of the
// directory that starts at cluster. The root is a fixed run of clusters.
func (f *Filesystem) directoryClusters(cluster ClusterPtr) ([]ClusterPtr, error) {
	if f.IsRoot(cluster) {
		n := int(f.Superblock.RootSize / VolumePtr(f.Superblock.ClusterSize))
		clusters := make([]ClusterPtr, n)
		for i := range clusters {
			clusters[i] = cluster + ClusterPtr(i)
		}
		return clusters, nil
	}

	return f.Fat.Clusters(cluster)
}

// ReadDirectory returns every slot of the listing, free and deleted ones
// included.
func (f *Filesystem) ReadDirectory(cluster ClusterPtr) ([]DirectorySlot, error) {
	clusters, err := f.directoryClusters(cluster)
	if err != nil {
		return nil, err
	}

	cs := int(f.Superblock.ClusterSize)
	buf := make([]byte, cs)
	slots := make([]DirectorySlot, 0, len(clusters)*cs/DirectoryEntrySize)
	for _, c := range clusters {
		base := ClusterPtrToVolumePtr(f.Superblock, c)
		err = f.Volume.ReadBytes(base, buf)
		if err != nil {
			return nil, err
		}

		for off := 0; off+DirectoryEntrySize <= cs; off += DirectoryEntrySize {
			raw := buf[off : off+DirectoryEntrySize]
			fh, err := DecodeFileHeader(raw)
			if err != nil {
				return nil, err
			}
			slots = append(slots, DirectorySlot{
				Offset: base + VolumePtr(off),
				Header: fh,
				State:  slotState(raw),
			})
		}
	}

	return slots, nil
}

// FindSlot returns the live slot whose key matches.
func (f *Filesystem) FindSlot(cluster ClusterPtr, key Key) (DirectorySlot, error) {
	slots, err := f.ReadDirectory(cluster)
	if err != nil {
		return DirectorySlot{}, err
	}

	for _, slot := range slots {
		if slot.State == SlotUsed && slot.Header.Key() == key {
			return slot, nil
		}
	}

	return DirectorySlot{}, NewError(InvalidPath, keyString(key), "not found in directory at cluster %d", cluster)
}

// FindSlotByName is FindSlot for a "name.ext" string.
func (f *Filesystem) FindSlotByName(cluster ClusterPtr, fileName string) (DirectorySlot, error) {
	key, ok := LookupKey(fileName)
	if !ok {
		return DirectorySlot{}, NewError(InvalidPath, fileName, "not a valid file name")
	}
	return f.FindSlot(cluster, key)
}

// FindDeletedSlot returns the tombstoned slot stored under fileName, with
// the deleted mark in place of the first character.
func (f *Filesystem) FindDeletedSlot(cluster ClusterPtr, fileName string) (DirectorySlot, error) {
	key, ok := LookupKey(fileName)
	if !ok || key[0] != DeletedMark {
		return DirectorySlot{}, NewError(InvalidPath, fileName, "not a deleted file name")
	}

	slots, err := f.ReadDirectory(cluster)
	if err != nil {
		return DirectorySlot{}, err
	}

	for _, slot := range slots {
		if slot.State == SlotDeleted && slot.Header.Key() == key {
			return slot, nil
		}
	}

	return DirectorySlot{}, NewError(InvalidPath, fileName, "no deleted entry in directory at cluster %d", cluster)
}

// FreeSlot returns the offset of the first free slot, ok is false when the
// listing is full.
func (f *Filesystem) FreeSlot(cluster ClusterPtr) (VolumePtr, bool, error) {
	slots, err := f.ReadDirectory(cluster)
	if err != nil {
		return 0, false, err
	}

	for _, slot := range slots {
		if slot.State == SlotFree {
			return slot.Offset, true, nil
		}
	}

	return 0, false, nil
}

// GrowDirectory appends one zeroed cluster to a sub-directory and returns
// the offset of its first slot.
func (f *Filesystem) GrowDirectory(cluster ClusterPtr) (VolumePtr, error) {
	if f.IsRoot(cluster) {
		return 0, NewError(RootDirectoryOutOfSpace, "/", "all %d entries are used", f.Superblock.RootEntries())
	}

	appended, err := f.Fat.Extend(cluster, 1)
	if err != nil {
		return 0, err
	}

	err = f.ZeroCluster(appended[0])
	if err != nil {
		return 0, err
	}

	log.Debugf("directory at cluster %d grew by cluster %d", cluster, appended[0])

	return ClusterPtrToVolumePtr(f.Superblock, appended[0]), nil
}

func (f *Filesystem) WriteSlot(offset VolumePtr, fh FileHeader) error {
	buf, err := fh.Encode()
	if err != nil {
		return err
	}
	return f.Volume.WriteBytes(offset, buf)
}

func (f *Filesystem) ClearSlot(offset VolumePtr) error {
	return f.Volume.WriteBytes(offset, make([]byte, DirectoryEntrySize))
}

func keyString(key Key) string {
	name := CToGoString(key[:NameMaxLength])
	extension := CToGoString(key[NameMaxLength:])
	if extension == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", name, extension)
}
