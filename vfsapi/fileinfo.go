package vfsapi

import (
	"time"

	"github.com/PapiCZ/meowfs/vfs"
)

type FileInfo struct {
	name   string
	size   int
	isDir  bool
	header vfs.FileHeader
	offset vfs.VolumePtr
}

func newFileInfo(slot vfs.DirectorySlot) FileInfo {
	return FileInfo{
		name:   slot.Header.DisplayName(),
		size:   int(slot.Header.Size),
		isDir:  slot.Header.IsDirectory(),
		header: slot.Header,
		offset: slot.Offset,
	}
}

func (fi FileInfo) Name() string {
	return fi.name
}

func (fi FileInfo) Size() int {
	return fi.size
}

func (fi FileInfo) IsDir() bool {
	return fi.isDir
}

func (fi FileInfo) Header() vfs.FileHeader {
	return fi.header
}

// Offset is the volume position of the entry's slot.
func (fi FileInfo) Offset() vfs.VolumePtr {
	return fi.offset
}

func (fi FileInfo) ModTime() time.Time {
	return fi.header.ChangeTime()
}
