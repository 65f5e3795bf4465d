package vfs

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type VolumePtr int64

// Volume is the single flat file that holds the whole virtual disk.
type Volume struct {
	fs         afero.Fs
	file       afero.File
	endianness binary.ByteOrder
}

func PrepareVolumeFile(fs afero.Fs, path string, size VolumePtr) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating volume file %s", path)
	}

	defer func() {
		_ = f.Close()
	}()

	err = f.Truncate(int64(size))
	if err != nil {
		return errors.Wrapf(err, "resizing volume file %s", path)
	}

	return nil
}

func NewVolume(fs afero.Fs, path string) (Volume, error) {
	f, err := fs.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return Volume{}, errors.Wrapf(err, "opening volume file %s", path)
	}

	return Volume{
		fs:         fs,
		file:       f,
		endianness: binary.LittleEndian,
	}, nil
}

func (v Volume) goToAddress(volumePtr VolumePtr) error {
	_, err := v.file.Seek(int64(volumePtr), io.SeekStart)
	if err != nil {
		return errors.Wrapf(err, "seeking to %d", volumePtr)
	}

	return nil
}

func (v Volume) WriteStruct(volumePtr VolumePtr, data interface{}) error {
	err := v.goToAddress(volumePtr)
	if err != nil {
		return err
	}

	err = binary.Write(v.file, v.endianness, data)
	if err != nil {
		return errors.Wrapf(err, "writing at %d", volumePtr)
	}

	return nil
}

func (v Volume) ReadStruct(volumePtr VolumePtr, data interface{}) error {
	err := v.goToAddress(volumePtr)
	if err != nil {
		return err
	}

	err = binary.Read(v.file, v.endianness, data)
	if err != nil {
		return errors.Wrapf(err, "reading at %d", volumePtr)
	}

	return nil
}

func (v Volume) WriteBytes(volumePtr VolumePtr, data []byte) error {
	_, err := v.file.WriteAt(data, int64(volumePtr))
	if err != nil {
		return errors.Wrapf(err, "writing %d bytes at %d", len(data), volumePtr)
	}

	return nil
}

func (v Volume) ReadBytes(volumePtr VolumePtr, data []byte) error {
	_, err := v.file.ReadAt(data, int64(volumePtr))
	if err != nil {
		return errors.Wrapf(err, "reading %d bytes at %d", len(data), volumePtr)
	}

	return nil
}

func (v Volume) Size() (VolumePtr, error) {
	if v.file == nil {
		return 0, errors.New("missing volume file")
	}

	stat, err := v.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat volume file")
	}

	return VolumePtr(stat.Size()), nil
}

func (v Volume) Name() string {
	return v.file.Name()
}

func (v Volume) Sync() error {
	return errors.Wrap(v.file.Sync(), "syncing volume")
}

func (v Volume) Close() error {
	return v.file.Close()
}

func (v Volume) Destroy() error {
	_ = v.Close()
	return v.fs.Remove(v.file.Name())
}
