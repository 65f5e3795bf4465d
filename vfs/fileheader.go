package vfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	FileHeaderSize     = 32
	NameMaxLength      = 8
	ExtensionMaxLength = 3
	DeletedMark        = '$'
	DefaultRights      = 0755
)

// Flags
const (
	FlagReadOnly  byte = 1 << 0
	FlagHidden    byte = 1 << 1
	FlagSystem    byte = 1 << 2
	FlagDirectory byte = 1 << 3
)

// Access rights, owner/group/other x {execute, write, read}.
const (
	RightOtherExecute uint16 = 1 << iota
	RightOtherWrite
	RightOtherRead
	RightGroupExecute
	RightGroupWrite
	RightGroupRead
	RightOwnerExecute
	RightOwnerWrite
	RightOwnerRead
)

const rightsMask = 0777

// FileHeader is one 32 byte directory entry. Name and Extension hold the
// stored fields without their trailing zero padding.
type FileHeader struct {
	Name         string
	Extension    string
	Size         uint32
	AccessRights uint16
	Flags        byte
	Uid          uint16
	Gid          uint16
	FirstCluster ClusterPtr
	ChDate       uint16
	ChTime       uint16
}

// rawFileHeader mirrors the on-disk layout field by field.
type rawFileHeader struct {
	Name         [NameMaxLength]byte
	Extension    [ExtensionMaxLength]byte
	Size         uint32
	AccessRights uint16
	Flags        byte
	Uid          uint16
	Gid          uint16
	FirstCluster ClusterPtr
	ChDate       uint16
	ChTime       uint16
	Reserved     uint32
}

// NewFileHeader returns a header with default rights stamped with now.
func NewFileHeader(name, extension string, flags byte, uid, gid uint16, now time.Time) (FileHeader, error) {
	fh := FileHeader{
		Name:         name,
		Extension:    extension,
		AccessRights: DefaultRights,
		Flags:        flags,
		Uid:          uid,
		Gid:          gid,
	}
	if fh.IsDirectory() {
		fh.Extension = ""
	}

	if err := fh.validateName(); err != nil {
		return FileHeader{}, err
	}
	if err := fh.SetChangeTime(now); err != nil {
		return FileHeader{}, err
	}

	return fh, nil
}

func (fh FileHeader) validateName() error {
	if len(fh.Name) > NameMaxLength {
		return NewError(InvalidPath, fh.Name, "name longer than %d characters", NameMaxLength)
	}
	if len(fh.Extension) > ExtensionMaxLength {
		return NewError(InvalidPath, fh.Extension, "extension longer than %d characters", ExtensionMaxLength)
	}
	return nil
}

func (fh FileHeader) raw() (rawFileHeader, error) {
	if err := fh.validateName(); err != nil {
		return rawFileHeader{}, err
	}

	r := rawFileHeader{
		Size:         fh.Size,
		AccessRights: fh.AccessRights,
		Flags:        fh.Flags,
		Uid:          fh.Uid,
		Gid:          fh.Gid,
		FirstCluster: fh.FirstCluster,
		ChDate:       fh.ChDate,
		ChTime:       fh.ChTime,
	}
	copy(r.Name[:], fh.Name)
	copy(r.Extension[:], fh.Extension)

	return r, nil
}

// Encode writes the 32 byte on-disk form.
func (fh FileHeader) Encode() ([]byte, error) {
	r, err := fh.raw()
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, FileHeaderSize))
	err = binary.Write(buf, binary.LittleEndian, r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeFileHeader reads a header from the first 32 bytes of buf.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, NewError(CorruptionDetected, "", "file header needs %d bytes, got %d", FileHeaderSize, len(buf))
	}

	var r rawFileHeader
	err := binary.Read(bytes.NewReader(buf[:FileHeaderSize]), binary.LittleEndian, &r)
	if err != nil {
		return FileHeader{}, err
	}

	return FileHeader{
		Name:         string(bytes.TrimRight(r.Name[:], "\x00")),
		Extension:    string(bytes.TrimRight(r.Extension[:], "\x00")),
		Size:         r.Size,
		AccessRights: r.AccessRights,
		Flags:        r.Flags,
		Uid:          r.Uid,
		Gid:          r.Gid,
		FirstCluster: r.FirstCluster,
		ChDate:       r.ChDate,
		ChTime:       r.ChTime,
	}, nil
}

// FileHeaderFromBytes builds an independent header from a raw buffer.
func FileHeaderFromBytes(buf []byte) (FileHeader, error) {
	own := make([]byte, FileHeaderSize)
	n := copy(own, buf)
	return DecodeFileHeader(own[:n])
}

func (fh FileHeader) Clone() (FileHeader, error) {
	buf, err := fh.Encode()
	if err != nil {
		return FileHeader{}, err
	}
	return FileHeaderFromBytes(buf)
}

// Key is the padded name and extension used for every lookup and collision
// check. Directories ignore their extension.
func (fh FileHeader) Key() Key {
	var key Key
	copy(key[:NameMaxLength], fh.Name)
	if !fh.IsDirectory() {
		copy(key[NameMaxLength:], fh.Extension)
	}
	return key
}

func (fh FileHeader) IsDeleted() bool {
	return len(fh.Name) > 0 && fh.Name[0] == DeletedMark
}

func (fh FileHeader) NameWithoutZeros() string {
	return CToGoString([]byte(fh.Name))
}

func (fh FileHeader) ExtensionWithoutZeros() string {
	return CToGoString([]byte(fh.Extension))
}

// DisplayName is "name.ext" for files and "name" for directories.
func (fh FileHeader) DisplayName() string {
	if fh.IsDirectory() || fh.ExtensionWithoutZeros() == "" {
		return fh.NameWithoutZeros()
	}
	return fh.NameWithoutZeros() + "." + fh.ExtensionWithoutZeros()
}

// ParseFileName splits "name.ext" at the first dot.
func ParseFileName(fileName string) (name, extension string) {
	i := strings.IndexByte(fileName, '.')
	if i < 0 {
		return fileName, ""
	}
	return fileName[:i], fileName[i+1:]
}

func (fh FileHeader) IsReadOnly() bool  { return fh.Flags&FlagReadOnly != 0 }
func (fh FileHeader) IsHidden() bool    { return fh.Flags&FlagHidden != 0 }
func (fh FileHeader) IsSystem() bool    { return fh.Flags&FlagSystem != 0 }
func (fh FileHeader) IsDirectory() bool { return fh.Flags&FlagDirectory != 0 }

func (fh *FileHeader) SetFlag(flag byte, value bool) {
	if value {
		fh.Flags |= flag
	} else {
		fh.Flags &^= flag
	}
}

// RightsString formats the rights mask like ls does, e.g. rwxr-xr-x.
func (fh FileHeader) RightsString() string {
	bits := []struct {
		right  uint16
		letter byte
	}{
		{RightOwnerRead, 'r'}, {RightOwnerWrite, 'w'}, {RightOwnerExecute, 'x'},
		{RightGroupRead, 'r'}, {RightGroupWrite, 'w'}, {RightGroupExecute, 'x'},
		{RightOtherRead, 'r'}, {RightOtherWrite, 'w'}, {RightOtherExecute, 'x'},
	}

	var sb strings.Builder
	for _, b := range bits {
		if fh.AccessRights&b.right != 0 {
			sb.WriteByte(b.letter)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func (fh *FileHeader) SetRights(rights uint16) {
	fh.AccessRights = rights & rightsMask
}

func (fh *FileHeader) SetChangeTime(t time.Time) error {
	date, err := PackDate(t.Year(), int(t.Month()), t.Day())
	if err != nil {
		return err
	}
	fh.ChDate = date
	fh.ChTime = PackTime(t.Hour(), t.Minute(), t.Second())
	return nil
}

func (fh FileHeader) ChangeTime() time.Time {
	year, month, day := UnpackDate(fh.ChDate)
	hour, minute, second := UnpackTime(fh.ChTime)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
}

func (fh FileHeader) ChDateDDMMYYYY() string {
	year, month, day := UnpackDate(fh.ChDate)
	return fmt.Sprintf("%02d.%02d.%04d", day, month, year)
}

func (fh FileHeader) ChTimeHHMMSS() string {
	hour, minute, second := UnpackTime(fh.ChTime)
	return fmt.Sprintf("%02d:%02d:%02d", hour, minute, second)
}

func (fh FileHeader) String() string {
	return fmt.Sprintf("%s %s %d uid=%d gid=%d cluster=%d %s %s",
		fh.DisplayName(), fh.RightsString(), fh.Size, fh.Uid, fh.Gid, fh.FirstCluster, fh.ChDateDDMMYYYY(), fh.ChTimeHHMMSS())
}
