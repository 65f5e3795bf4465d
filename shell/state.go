package shell

import (
	"time"

	"github.com/PapiCZ/meowfs/config"
	"github.com/PapiCZ/meowfs/vfs"
	"github.com/PapiCZ/meowfs/vfsapi"
	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const stateKey = "state"

var ErrNoVolume = errors.New("no volume is open, use format first")

// State is shared by every command of one shell.
type State struct {
	Host       afero.Fs
	VolumePath string
	Config     config.Config
	Session    *vfsapi.Session
	Now        func() time.Time
}

func NewState(host afero.Fs, volumePath string, cfg config.Config) *State {
	return &State{
		Host:       host,
		VolumePath: volumePath,
		Config:     cfg,
		Now:        time.Now,
	}
}

// Open opens the volume when it already exists on the host.
func (st *State) Open() error {
	exists, err := afero.Exists(st.Host, st.VolumePath)
	if err != nil || !exists {
		return err
	}

	session, err := vfsapi.OpenSpace(st.Host, st.VolumePath)
	if err != nil {
		return err
	}
	st.Session = session

	return nil
}

func (st *State) Close() error {
	if !st.Session.IsOpen() {
		return nil
	}
	return st.Session.CloseSpace()
}

// Format replaces the volume with a fresh one. Nothing is formatted when the
// open volume cannot be closed cleanly.
func (st *State) Format(opts vfs.FormatOptions) error {
	err := st.Close()
	if err != nil {
		return errors.Wrap(err, "closing the volume before format")
	}

	session, err := vfsapi.Format(st.Host, st.VolumePath, opts)
	if err != nil {
		st.Session = nil
		return err
	}
	st.Session = session

	return nil
}

func (st *State) session() (*vfsapi.Session, error) {
	if !st.Session.IsOpen() {
		return nil, ErrNoVolume
	}
	return st.Session, nil
}

func (st *State) Prompt() string {
	if !st.Session.IsOpen() {
		return "> "
	}

	path := st.Session.CurrentDirectory().Path
	if path == "" {
		path = vfsapi.PathSeparator
	}
	return path + " > "
}

func (st *State) newHeader(fileName string, flags byte) (vfs.FileHeader, error) {
	name, extension := vfs.ParseFileName(fileName)
	return vfs.NewFileHeader(name, extension, flags, st.Config.Owner.Uid, st.Config.Owner.Gid, st.Now())
}

// target returns the directory and name a file copied to dst lands under.
// An existing directory keeps the source name.
func (st *State) target(dst, name string) (string, string) {
	abs := st.Session.Abs(dst)
	fh, err := vfsapi.GetFileHeaderByPath(st.Session, abs)
	if err == nil && fh.IsDirectory() {
		return abs, name
	}
	return vfsapi.SplitLast(abs)
}

// writeFile stores data under fh in dir, rewriting a file of the same name.
// When the volume runs out of space it repairs the allocation table and
// tries once more.
func (st *State) writeFile(dir string, fh *vfs.FileHeader, data []byte) error {
	s := st.Session

	existing, err := vfsapi.GetFileHeaderByPath(s, vfsapi.Join(dir, fh.DisplayName()))
	if err == nil {
		if existing.IsDirectory() {
			return vfs.NewError(vfs.FileAlreadyExists, vfsapi.Join(dir, fh.DisplayName()), "is a directory")
		}
		_ = existing.SetChangeTime(st.Now())
		err = vfsapi.RewriteFile(s, dir, &existing, data)
		*fh = existing
		return err
	}

	err = vfsapi.WriteFile(s, dir, fh, data)
	switch vfs.KindOf(err) {
	case vfs.RootDirectoryOutOfSpace, vfs.DiskOutOfSpace:
		log.WithError(err).Info("out of space, repairing the volume and retrying")

		_, rerr := vfsapi.Repair(s)
		if rerr != nil {
			return rerr
		}

		err = vfsapi.WriteFile(s, dir, fh, data)
		if err != nil {
			// Reclaim the clusters of the failed attempt
			_, _ = vfsapi.Repair(s)
		}
	}

	return err
}

func getState(c *ishell.Context) *State {
	return c.Get(stateKey).(*State)
}
