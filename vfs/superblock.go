package vfs

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	Signature           = "MEOWFS"
	SuperblockVersion   = 1
	MinClusterSize      = 64
	MaxClusterCount     = 0xFFF0
	VolumeLabelLength   = 11
	DirectoryEntrySize  = FileHeaderSize
	defaultRootEntries  = 64
	superblockSignature = 8
)

type Superblock struct {
	Signature        [superblockSignature]byte
	VolumeID         [16]byte
	VolumeLabel      [VolumeLabelLength]byte
	Version          uint8
	ClusterSize      uint16
	ClusterCount     uint16
	FatStartAddress  VolumePtr
	RootStartAddress VolumePtr
	RootSize         VolumePtr
	DataStartAddress VolumePtr
}

// SuperblockSize is the encoded size of the superblock.
var SuperblockSize = VolumePtr(binary.Size(Superblock{}))

// NewPreparedSuperblock lays out a volume of volumeSize bytes: superblock,
// allocation table, fixed root region of rootEntries slots, data clusters.
func NewPreparedSuperblock(label string, volumeSize VolumePtr, clusterSize uint16, rootEntries int) (Superblock, error) {
	if clusterSize < MinClusterSize || clusterSize%DirectoryEntrySize != 0 {
		return Superblock{}, errors.Errorf("cluster size %d must be a multiple of %d and at least %d", clusterSize, DirectoryEntrySize, MinClusterSize)
	}
	if rootEntries <= 0 {
		rootEntries = defaultRootEntries
	}
	if len(label) > VolumeLabelLength {
		return Superblock{}, errors.Errorf("volume label %q is longer than %d characters", label, VolumeLabelLength)
	}

	clusterCount := volumeSize / VolumePtr(clusterSize)
	if clusterCount > MaxClusterCount {
		return Superblock{}, errors.Errorf("volume of %d bytes needs %d clusters of %d bytes, maximum is %d", volumeSize, clusterCount, clusterSize, MaxClusterCount)
	}

	s := Superblock{
		Version:      SuperblockVersion,
		ClusterSize:  clusterSize,
		ClusterCount: uint16(clusterCount),
	}
	copy(s.Signature[:], Signature)
	copy(s.VolumeLabel[:], label)
	id := uuid.New()
	copy(s.VolumeID[:], id[:])

	s.FatStartAddress = SuperblockSize
	fatEnd := s.FatStartAddress + clusterCount*2
	s.RootStartAddress = roundUp(fatEnd, VolumePtr(clusterSize))
	s.RootSize = roundUp(VolumePtr(rootEntries*DirectoryEntrySize), VolumePtr(clusterSize))
	s.DataStartAddress = s.RootStartAddress + s.RootSize

	if err := s.Validate(); err != nil {
		return Superblock{}, errors.Wrapf(err, "volume of %d bytes is too small", volumeSize)
	}

	return s, nil
}

func LoadSuperblock(volume Volume) (Superblock, error) {
	size, err := volume.Size()
	if err != nil {
		return Superblock{}, err
	}
	if size < SuperblockSize {
		return Superblock{}, NewError(CorruptionDetected, volume.Name(), "volume has %d bytes, superblock needs %d", size, SuperblockSize)
	}

	var s Superblock
	err = volume.ReadStruct(0, &s)
	if err != nil {
		return Superblock{}, NewError(CorruptionDetected, volume.Name(), "unreadable superblock: %v", err)
	}

	err = s.Validate()
	if err != nil {
		return Superblock{}, err
	}

	if size < s.VolumeSize() {
		return Superblock{}, NewError(CorruptionDetected, volume.Name(), "volume has %d bytes, superblock describes %d", size, s.VolumeSize())
	}

	return s, nil
}

// Validate checks that the layout is internally consistent.
func (s Superblock) Validate() error {
	var signature [superblockSignature]byte
	copy(signature[:], Signature)

	cs := VolumePtr(s.ClusterSize)
	switch {
	case !bytes.Equal(s.Signature[:], signature[:]):
		return NewError(CorruptionDetected, "", "bad signature %q", CToGoString(s.Signature[:]))
	case s.Version != SuperblockVersion:
		return NewError(CorruptionDetected, "", "unsupported version %d", s.Version)
	case s.ClusterSize < MinClusterSize || s.ClusterSize%DirectoryEntrySize != 0:
		return NewError(CorruptionDetected, "", "bad cluster size %d", s.ClusterSize)
	case s.ClusterCount > MaxClusterCount:
		return NewError(CorruptionDetected, "", "too many clusters %d", s.ClusterCount)
	case s.FatStartAddress < SuperblockSize:
		return NewError(CorruptionDetected, "", "allocation table overlaps superblock")
	case s.FatStartAddress+VolumePtr(s.ClusterCount)*2 > s.RootStartAddress:
		return NewError(CorruptionDetected, "", "allocation table overlaps root directory")
	case s.RootSize <= 0:
		return NewError(CorruptionDetected, "", "bad root directory size %d", s.RootSize)
	case s.RootStartAddress%cs != 0 || s.RootSize%cs != 0:
		return NewError(CorruptionDetected, "", "root directory is not cluster aligned")
	case s.DataStartAddress != s.RootStartAddress+s.RootSize:
		return NewError(CorruptionDetected, "", "data region does not follow root directory")
	case s.FirstDataCluster() <= s.RootCluster():
		return NewError(CorruptionDetected, "", "data region starts at cluster %d, root at %d", s.FirstDataCluster(), s.RootCluster())
	case s.DataStartAddress >= s.VolumeSize():
		return NewError(CorruptionDetected, "", "no data clusters")
	}

	return nil
}

func (s Superblock) VolumeSize() VolumePtr {
	return VolumePtr(s.ClusterCount) * VolumePtr(s.ClusterSize)
}

func (s Superblock) RootCluster() ClusterPtr {
	return ClusterPtr(s.RootStartAddress / VolumePtr(s.ClusterSize))
}

func (s Superblock) FirstDataCluster() ClusterPtr {
	return ClusterPtr(s.DataStartAddress / VolumePtr(s.ClusterSize))
}

func (s Superblock) DataClusterCount() int {
	return int(s.ClusterCount) - int(s.FirstDataCluster())
}

func (s Superblock) RootEntries() int {
	return int(s.RootSize / DirectoryEntrySize)
}

func (s Superblock) Label() string {
	return CToGoString(s.VolumeLabel[:])
}

func (s Superblock) ID() uuid.UUID {
	return uuid.UUID(s.VolumeID)
}

func roundUp(value, to VolumePtr) VolumePtr {
	return (value + to - 1) / to * to
}
