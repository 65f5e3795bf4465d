package vfsapi

import (
	"testing"

	"github.com/PapiCZ/meowfs/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeDirectory(t *testing.T) {
	s := newTestSession(t)
	root := s.Superblock().RootCluster()

	docs, err := Mkdir(s, "/docs", 0, 0, testTime)
	require.NoError(t, err)
	_, err = Mkdir(s, "/docs/sub", 0, 0, testTime)
	require.NoError(t, err)
	writeTestFile(t, s, "", "a.txt", []byte{1})

	assert.Equal(t, Location{Path: "", Cluster: root}, s.CurrentDirectory())

	require.NoError(t, s.ChangeDirectory("docs"))
	assert.Equal(t, Location{Path: "/docs", Cluster: docs.FirstCluster}, s.CurrentDirectory())
	assert.Equal(t, "/docs/sub", s.Abs("sub"))

	err = s.ChangeDirectory("missing")
	assert.True(t, vfs.IsKind(err, vfs.InvalidPath))
	assert.Equal(t, "/docs", s.CurrentDirectory().Path)

	err = s.ChangeDirectory("/a.txt")
	assert.True(t, vfs.IsKind(err, vfs.InvalidPath))
	assert.Equal(t, "/docs", s.CurrentDirectory().Path)

	require.NoError(t, s.ChangeDirectory(".."))
	assert.Equal(t, Location{Path: "", Cluster: root}, s.CurrentDirectory())
}

func TestCloseSpace(t *testing.T) {
	s := newTestSession(t)
	require.True(t, s.IsOpen())

	require.NoError(t, s.CloseSpace())
	assert.False(t, s.IsOpen())
	assert.Equal(t, ErrSessionClosed, s.CloseSpace())

	_, err := ReadFile(s, "/a.txt")
	assert.Equal(t, ErrSessionClosed, err)

	fh := newHeader(t, "a.txt")
	assert.Equal(t, ErrSessionClosed, WriteFile(s, "", &fh, nil))
	assert.Equal(t, ErrSessionClosed, s.ChangeDirectory("/"))
	assert.Equal(t, vfs.Superblock{}, s.Superblock())
}

func TestOpenSpacePersists(t *testing.T) {
	afs := afero.NewMemMapFs()
	s, err := Format(afs, testVolume, vfs.FormatOptions{
		Label:       "TEST",
		Size:        64 * 1024,
		ClusterSize: testClusterSize,
		RootEntries: 16,
	})
	require.NoError(t, err)

	_, err = Mkdir(s, "/docs", 0, 0, testTime)
	require.NoError(t, err)
	writeTestFile(t, s, "/docs", "a.txt", []byte("persisted"))
	require.NoError(t, s.CloseSpace())

	reopened, err := OpenSpace(afs, testVolume)
	require.NoError(t, err)
	defer func() {
		_ = reopened.CloseSpace()
	}()

	assert.Equal(t, "TEST", reopened.Superblock().Label())
	assert.Equal(t, testDataCluster-2, reopened.Filesystem().Fat.FreeCount())

	data, err := ReadFile(reopened, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}

func TestOpenSpaceMissingVolume(t *testing.T) {
	_, err := OpenSpace(afero.NewMemMapFs(), "missing.vol")
	assert.Error(t, err)
}
