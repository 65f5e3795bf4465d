package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockSize(t *testing.T) {
	assert.Equal(t, VolumePtr(72), SuperblockSize)
}

func TestNewPreparedSuperblock(t *testing.T) {
	sb, err := NewPreparedSuperblock("TEST", 64*1024, 512, 16)
	require.NoError(t, err)

	assert.Equal(t, uint16(128), sb.ClusterCount)
	assert.Equal(t, SuperblockSize, sb.FatStartAddress)
	assert.Equal(t, VolumePtr(512), sb.RootStartAddress)
	assert.Equal(t, VolumePtr(512), sb.RootSize)
	assert.Equal(t, VolumePtr(1024), sb.DataStartAddress)
	assert.Equal(t, ClusterPtr(1), sb.RootCluster())
	assert.Equal(t, ClusterPtr(2), sb.FirstDataCluster())
	assert.Equal(t, 126, sb.DataClusterCount())
	assert.Equal(t, 16, sb.RootEntries())
	assert.Equal(t, "TEST", sb.Label())
	assert.NoError(t, sb.Validate())
}

func TestNewPreparedSuperblockRoundsRoot(t *testing.T) {
	sb, err := NewPreparedSuperblock("", 64*1024, 512, 20)
	require.NoError(t, err)

	assert.Equal(t, VolumePtr(1024), sb.RootSize)
	assert.Equal(t, 32, sb.RootEntries())
}

func TestNewPreparedSuperblockErrors(t *testing.T) {
	tests := []struct {
		name        string
		label       string
		size        VolumePtr
		clusterSize uint16
	}{
		{"cluster size not multiple of entry", "", 64 * 1024, 100},
		{"cluster size too small", "", 64 * 1024, 32},
		{"too many clusters", "", 64 * (MaxClusterCount + 1), 64},
		{"no room for data", "", 1024, 512},
		{"label too long", "ABCDEFGHIJKL", 64 * 1024, 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreparedSuperblock(tt.label, tt.size, tt.clusterSize, 16)
			assert.Error(t, err)
		})
	}
}

func TestSuperblockValidate(t *testing.T) {
	sb, err := NewPreparedSuperblock("TEST", 64*1024, 512, 16)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *Superblock)
	}{
		{"bad signature", func(s *Superblock) { s.Signature[0] = 'X' }},
		{"bad version", func(s *Superblock) { s.Version = 7 }},
		{"data detached from root", func(s *Superblock) { s.DataStartAddress += 512 }},
		{"root overlaps table", func(s *Superblock) { s.RootStartAddress = 256 }},
		{"empty root", func(s *Superblock) {
			s.RootSize = 0
			s.DataStartAddress = s.RootStartAddress
		}},
		{"negative root size", func(s *Superblock) {
			s.RootSize = -512
			s.DataStartAddress = s.RootStartAddress + s.RootSize
		}},
		{"data before root", func(s *Superblock) {
			s.RootStartAddress = 1024
			s.RootSize = -1024
			s.DataStartAddress = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := sb
			tt.mutate(&broken)
			assert.True(t, IsKind(broken.Validate(), CorruptionDetected))
		})
	}
}

func TestLoadSuperblockRejectsNegativeRoot(t *testing.T) {
	afs, fs := formatTestVolume(t)
	sb := fs.Superblock
	require.NoError(t, fs.Close())

	sb.RootSize = -512
	sb.DataStartAddress = sb.RootStartAddress + sb.RootSize

	volume, err := NewVolume(afs, testVolume)
	require.NoError(t, err)
	defer volume.Close()
	require.NoError(t, volume.WriteStruct(0, sb))

	_, err = LoadSuperblock(volume)
	assert.True(t, IsKind(err, CorruptionDetected))
	_, err = LoadFilesystem(volume)
	assert.True(t, IsKind(err, CorruptionDetected))
}

func TestSuperblockUniqueIDs(t *testing.T) {
	a, err := NewPreparedSuperblock("", 64*1024, 512, 16)
	require.NoError(t, err)
	b, err := NewPreparedSuperblock("", 64*1024, 512, 16)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
}
