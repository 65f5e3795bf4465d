package vfsapi

import (
	"github.com/PapiCZ/meowfs/vfs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var ErrSessionClosed = errors.New("session is closed")

// Location is the current directory: its normalized path and the first
// cluster of its listing. The root is {"", root cluster}.
type Location struct {
	Path    string
	Cluster vfs.ClusterPtr
}

// Session owns an open volume for its whole lifetime. Every controller
// operation takes the session explicitly.
type Session struct {
	fs  *vfs.Filesystem
	cwd Location
}

func NewSession(fs *vfs.Filesystem) *Session {
	return &Session{
		fs: fs,
		cwd: Location{
			Path:    "",
			Cluster: fs.Superblock.RootCluster(),
		},
	}
}

// OpenSpace loads the superblock and allocation table of the volume at path.
func OpenSpace(afs afero.Fs, path string) (*Session, error) {
	volume, err := vfs.NewVolume(afs, path)
	if err != nil {
		return nil, err
	}

	fs, err := vfs.LoadFilesystem(volume)
	if err != nil {
		_ = volume.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":  path,
		"label": fs.Superblock.Label(),
		"free":  fs.Fat.FreeCount(),
	}).Debug("opened volume")

	return NewSession(fs), nil
}

// Format creates a fresh volume at path and opens a session on it.
func Format(afs afero.Fs, path string, opts vfs.FormatOptions) (*Session, error) {
	fs, err := vfs.Format(afs, path, opts)
	if err != nil {
		return nil, err
	}
	return NewSession(fs), nil
}

// CloseSpace flushes the allocation table and closes the volume.
func (s *Session) CloseSpace() error {
	if s.fs == nil {
		return ErrSessionClosed
	}

	err := s.fs.Close()
	s.fs = nil
	return err
}

func (s *Session) IsOpen() bool {
	return s != nil && s.fs != nil
}

func (s *Session) filesystem() (*vfs.Filesystem, error) {
	if !s.IsOpen() {
		return nil, ErrSessionClosed
	}
	return s.fs, nil
}

func (s *Session) Filesystem() *vfs.Filesystem {
	return s.fs
}

func (s *Session) Superblock() vfs.Superblock {
	if !s.IsOpen() {
		return vfs.Superblock{}
	}
	return s.fs.Superblock
}

func (s *Session) CurrentDirectory() Location {
	return s.cwd
}

// Abs resolves path against the current directory.
func (s *Session) Abs(path string) string {
	return Join(s.cwd.Path, path)
}

// ChangeDirectory moves the current directory. A failed resolution leaves
// it unchanged.
func (s *Session) ChangeDirectory(path string) error {
	fs, err := s.filesystem()
	if err != nil {
		return err
	}

	abs := s.Abs(path)
	cluster, err := resolveDirectory(fs, abs)
	if err != nil {
		return err
	}

	s.cwd = Location{Path: abs, Cluster: cluster}

	return nil
}
