package shell

import (
	"fmt"
	"testing"
	"time"

	"github.com/PapiCZ/meowfs/config"
	"github.com/PapiCZ/meowfs/vfs"
	"github.com/PapiCZ/meowfs/vfsapi"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVolume = "test.vol"

func newTestState(t *testing.T) *State {
	cfg := config.Default()
	cfg.RootEntries = 16
	cfg.Owner = config.Owner{Uid: 1000, Gid: 100}

	st := NewState(afero.NewMemMapFs(), testVolume, cfg)
	st.Now = func() time.Time {
		return time.Date(2021, time.March, 1, 12, 0, 0, 0, time.Local)
	}

	opts, err := cfg.FormatOptions(64 * 1024)
	require.NoError(t, err)
	st.Session, err = vfsapi.Format(st.Host, st.VolumePath, opts)
	require.NoError(t, err)

	return st
}

func TestOpenMissingVolume(t *testing.T) {
	st := NewState(afero.NewMemMapFs(), testVolume, config.Default())
	require.NoError(t, st.Open())
	assert.False(t, st.Session.IsOpen())
	assert.Equal(t, "> ", st.Prompt())

	_, err := st.session()
	assert.Equal(t, ErrNoVolume, err)
	assert.NoError(t, st.Close())
}

func TestOpenExistingVolume(t *testing.T) {
	st := newTestState(t)
	require.NoError(t, st.Close())

	reopened := NewState(st.Host, testVolume, st.Config)
	require.NoError(t, reopened.Open())
	assert.True(t, reopened.Session.IsOpen())
	assert.Equal(t, "/ > ", reopened.Prompt())

	_, err := vfsapi.Mkdir(reopened.Session, "/docs", 0, 0, st.Now())
	require.NoError(t, err)
	require.NoError(t, reopened.Session.ChangeDirectory("/docs"))
	assert.Equal(t, "/docs > ", reopened.Prompt())
}

func TestTarget(t *testing.T) {
	st := newTestState(t)
	_, err := vfsapi.Mkdir(st.Session, "/docs", 0, 0, st.Now())
	require.NoError(t, err)

	dir, name := st.target("docs", "a.txt")
	assert.Equal(t, "/docs", dir)
	assert.Equal(t, "a.txt", name)

	dir, name = st.target("/docs/b.txt", "a.txt")
	assert.Equal(t, "/docs", dir)
	assert.Equal(t, "b.txt", name)

	dir, name = st.target("/", "a.txt")
	assert.Equal(t, "", dir)
	assert.Equal(t, "a.txt", name)
}

func TestWriteFileRewritesExisting(t *testing.T) {
	st := newTestState(t)

	fh, err := st.newHeader("a.txt", 0)
	require.NoError(t, err)
	require.NoError(t, st.writeFile("", &fh, []byte("first")))

	again, err := st.newHeader("a.txt", 0)
	require.NoError(t, err)
	require.NoError(t, st.writeFile("", &again, []byte("second")))

	data, err := vfsapi.ReadFile(st.Session, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	files, err := vfsapi.ReadDir(st.Session, "", true)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, uint16(1000), files[0].Header().Uid)
}

func TestWriteFileRepairsAndRetries(t *testing.T) {
	st := newTestState(t)

	for i := 0; i < 16; i++ {
		fh, err := st.newHeader(fmt.Sprintf("f%d", i), 0)
		require.NoError(t, err)
		require.NoError(t, st.writeFile("", &fh, []byte{byte(i)}))
		require.NoError(t, vfsapi.DeleteFile(st.Session, "", fh))
	}

	fh, err := st.newHeader("new.txt", 0)
	require.NoError(t, err)
	require.NoError(t, st.writeFile("", &fh, []byte("fits")))

	data, err := vfsapi.ReadFile(st.Session, "/new.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("fits"), data)

	usage, err := vfsapi.Usage(st.Session)
	require.NoError(t, err)
	assert.Equal(t, usage.DataClusters-1, usage.FreeClusters)
}

func TestWriteFileReclaimsAfterFailedRetry(t *testing.T) {
	st := newTestState(t)

	for i := 0; i < 16; i++ {
		fh, err := st.newHeader(fmt.Sprintf("f%d", i), 0)
		require.NoError(t, err)
		require.NoError(t, st.writeFile("", &fh, nil))
	}

	fh, err := st.newHeader("extra", 0)
	require.NoError(t, err)
	err = st.writeFile("", &fh, []byte("no room"))
	assert.True(t, vfs.IsKind(err, vfs.RootDirectoryOutOfSpace))

	report, err := vfsapi.FsCheck(st.Session)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestUpdateHeader(t *testing.T) {
	st := newTestState(t)

	fh, err := st.newHeader("a.txt", 0)
	require.NoError(t, err)
	require.NoError(t, st.writeFile("", &fh, []byte("abc")))

	rights, err := parseMode("640")
	require.NoError(t, err)
	changes, err := parseAttrib([]string{"+h", "+r"})
	require.NoError(t, err)

	err = st.updateHeader("a.txt", func(fh *vfs.FileHeader) error {
		fh.SetRights(rights)
		for _, change := range changes {
			fh.SetFlag(change.flag, change.value)
		}
		return nil
	})
	require.NoError(t, err)

	updated, err := vfsapi.GetFileHeaderByPath(st.Session, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "rw-r-----", updated.RightsString())
	assert.True(t, updated.IsHidden())
	assert.True(t, updated.IsReadOnly())
	assert.Equal(t, "-rh-", flagsString(updated))
	assert.Equal(t, fh.FirstCluster, updated.FirstCluster)

	err = st.updateHeader("/", func(fh *vfs.FileHeader) error { return nil })
	assert.True(t, vfs.IsKind(err, vfs.InvalidPath))

	err = st.updateHeader("missing", func(fh *vfs.FileHeader) error { return nil })
	assert.True(t, vfs.IsKind(err, vfs.InvalidPath))
}

func TestParseAttrib(t *testing.T) {
	changes, err := parseAttrib([]string{"+s", "-h"})
	require.NoError(t, err)
	assert.Equal(t, []flagChange{
		{flag: vfs.FlagSystem, value: true},
		{flag: vfs.FlagHidden, value: false},
	}, changes)

	for _, arg := range []string{"h", "+x", "*h", "+hh"} {
		_, err := parseAttrib([]string{arg})
		assert.Error(t, err, arg)
	}
}

func TestParseMode(t *testing.T) {
	rights, err := parseMode("755")
	require.NoError(t, err)
	assert.Equal(t, uint16(0755), rights)

	for _, mode := range []string{"888", "1000", "rwx", ""} {
		_, err := parseMode(mode)
		assert.Error(t, err, mode)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "FILE NOT FOUND", errorMessage(vfs.NewError(vfs.InvalidPath, "/a", ""), "FILE NOT FOUND"))
	assert.Equal(t, "PATH NOT FOUND", errorMessage(vfs.NewError(vfs.InvalidPath, "/a", ""), ""))
	assert.Equal(t, "ROOT DIRECTORY FULL", errorMessage(vfs.NewError(vfs.RootDirectoryOutOfSpace, "/", ""), ""))
	assert.Equal(t, "NOT ENOUGH AVAILABLE SPACE", errorMessage(errors.Wrap(vfs.NewError(vfs.DiskOutOfSpace, "", ""), "copy"), ""))
	assert.Equal(t, "NO VOLUME (use format first)", errorMessage(vfsapi.ErrSessionClosed, ""))
	assert.Equal(t, "", errorMessage(errors.New("boom"), ""))
}

func TestFormatReplacesVolume(t *testing.T) {
	st := newTestState(t)
	_, err := vfsapi.Mkdir(st.Session, "/docs", 0, 0, st.Now())
	require.NoError(t, err)

	opts, err := st.Config.FormatOptions(64 * 1024)
	require.NoError(t, err)
	require.NoError(t, st.Format(opts))

	files, err := vfsapi.ReadDir(st.Session, "", true)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFormatKeepsVolumeWhenCloseFails(t *testing.T) {
	st := newTestState(t)
	_, err := vfsapi.Mkdir(st.Session, "/docs", 0, 0, st.Now())
	require.NoError(t, err)

	before, err := afero.ReadFile(st.Host, testVolume)
	require.NoError(t, err)

	// Leave a table change behind that can no longer be written.
	fs := st.Session.Filesystem()
	require.NoError(t, fs.Fat.Set(fs.Superblock.FirstDataCluster()+5, vfs.ClusterEndOfChain))
	require.NoError(t, fs.Volume.Close())

	opts, err := st.Config.FormatOptions(64 * 1024)
	require.NoError(t, err)
	assert.Error(t, st.Format(opts))

	after, err := afero.ReadFile(st.Host, testVolume)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
