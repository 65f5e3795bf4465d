package vfs

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2020, time.May, 17, 10, 30, 15, 0, time.Local)

func TestFileHeaderLayout(t *testing.T) {
	fh, err := NewFileHeader("hello", "txt", FlagHidden, 1000, 100, testTime)
	require.NoError(t, err)
	fh.Size = 3
	fh.FirstCluster = 0x1234

	buf, err := fh.Encode()
	require.NoError(t, err)
	require.Len(t, buf, FileHeaderSize)

	assert.Equal(t, []byte("hello\x00\x00\x00"), buf[0:8])
	assert.Equal(t, []byte("txt"), buf[8:11])
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[11:15]))
	assert.Equal(t, uint16(DefaultRights), binary.LittleEndian.Uint16(buf[15:17]))
	assert.Equal(t, FlagHidden, buf[17])
	assert.Equal(t, uint16(1000), binary.LittleEndian.Uint16(buf[18:20]))
	assert.Equal(t, uint16(100), binary.LittleEndian.Uint16(buf[20:22]))
	assert.Equal(t, uint16(0x1234), binary.LittleEndian.Uint16(buf[22:24]))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[28:32])
}

func TestFileHeaderEncodeDecode(t *testing.T) {
	fh, err := NewFileHeader("a", "c", 0, 1, 2, testTime)
	require.NoError(t, err)
	fh.Size = 42
	fh.FirstCluster = 7

	buf, err := fh.Encode()
	require.NoError(t, err)

	decoded, err := DecodeFileHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, fh, decoded)

	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, buf, again)
}

func TestFileHeaderOddSecondIsRoundedDown(t *testing.T) {
	fh, err := NewFileHeader("a", "", 0, 0, 0, testTime)
	require.NoError(t, err)

	changed := fh.ChangeTime()
	assert.Equal(t, 2020, changed.Year())
	assert.Equal(t, time.May, changed.Month())
	assert.Equal(t, 17, changed.Day())
	assert.Equal(t, 10, changed.Hour())
	assert.Equal(t, 30, changed.Minute())
	assert.Equal(t, 14, changed.Second())

	assert.Equal(t, "17.05.2020", fh.ChDateDDMMYYYY())
	assert.Equal(t, "10:30:14", fh.ChTimeHHMMSS())
}

func TestFileHeaderNameTooLong(t *testing.T) {
	_, err := NewFileHeader("verylongname", "txt", 0, 0, 0, testTime)
	assert.True(t, IsKind(err, InvalidPath))

	_, err = NewFileHeader("name", "text", 0, 0, 0, testTime)
	assert.True(t, IsKind(err, InvalidPath))

	fh := FileHeader{Name: "123456789"}
	_, err = fh.Encode()
	assert.True(t, IsKind(err, InvalidPath))
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := DecodeFileHeader(make([]byte, FileHeaderSize-1))
	assert.True(t, IsKind(err, CorruptionDetected))
}

func TestFileHeaderDateBefore1980(t *testing.T) {
	_, err := NewFileHeader("old", "", 0, 0, 0, time.Date(1979, time.December, 31, 23, 59, 59, 0, time.Local))
	assert.Error(t, err)
}

func TestFileHeaderFromBytesIsIndependent(t *testing.T) {
	fh, err := NewFileHeader("a", "b", 0, 0, 0, testTime)
	require.NoError(t, err)

	buf, err := fh.Encode()
	require.NoError(t, err)

	copied, err := FileHeaderFromBytes(buf)
	require.NoError(t, err)
	buf[0] = 'z'
	assert.Equal(t, "a", copied.Name)

	clone, err := copied.Clone()
	require.NoError(t, err)
	clone.Size = 10
	clone.SetFlag(FlagReadOnly, true)
	assert.Equal(t, uint32(0), copied.Size)
	assert.False(t, copied.IsReadOnly())
}

func TestFileHeaderKeyAndNames(t *testing.T) {
	dir, err := NewFileHeader("docs", "xyz", FlagDirectory, 0, 0, testTime)
	require.NoError(t, err)
	assert.Equal(t, "", dir.Extension)
	assert.Equal(t, "docs", dir.DisplayName())

	key, ok := LookupKey("docs")
	require.True(t, ok)
	assert.Equal(t, key, dir.Key())

	file := FileHeader{Name: "docs", Extension: "txt"}
	assert.NotEqual(t, dir.Key(), file.Key())
	assert.Equal(t, "docs.txt", file.DisplayName())

	_, ok = LookupKey("")
	assert.False(t, ok)
	_, ok = LookupKey("toolongname.txt")
	assert.False(t, ok)

	name, ext := ParseFileName("archive.tar.gz")
	assert.Equal(t, "archive", name)
	assert.Equal(t, "tar.gz", ext)
}

func TestFileHeaderRights(t *testing.T) {
	fh := FileHeader{AccessRights: DefaultRights}
	assert.Equal(t, "rwxr-xr-x", fh.RightsString())

	fh.SetRights(0640)
	assert.Equal(t, "rw-r-----", fh.RightsString())

	fh.SetRights(RightOwnerRead | RightGroupWrite | RightOtherExecute)
	assert.Equal(t, "r---w---x", fh.RightsString())

	fh.SetRights(07777)
	assert.Equal(t, uint16(0777), fh.AccessRights)
}

func TestFileHeaderDeleted(t *testing.T) {
	fh := FileHeader{Name: "$ello", Extension: "txt"}
	assert.True(t, fh.IsDeleted())
	assert.False(t, FileHeader{Name: "hello"}.IsDeleted())
}

func TestPackDate(t *testing.T) {
	date, err := PackDate(2020, 5, 17)
	require.NoError(t, err)

	year, month, day := UnpackDate(date)
	assert.Equal(t, []int{2020, 5, 17}, []int{year, month, day})

	_, err = PackDate(1979, 1, 1)
	assert.Error(t, err)
	_, err = PackDate(2108, 1, 1)
	assert.Error(t, err)
	_, err = PackDate(2000, 13, 1)
	assert.Error(t, err)
}

func TestFileHeaderRawBufferRoundTrip(t *testing.T) {
	raw := func(name, ext string, rest ...byte) []byte {
		buf := make([]byte, FileHeaderSize)
		copy(buf[0:8], name)
		copy(buf[8:11], ext)
		copy(buf[11:28], rest)
		return buf
	}

	tests := []struct {
		name string
		buf  []byte
	}{
		{"free slot", make([]byte, FileHeaderSize)},
		{"embedded nul in name", raw("AB\x00CD", "T\x00X", 1, 2, 3, 4)},
		{"tombstone", raw("$ELLO", "TXT", 0xFF, 0, 0, 0, 0xFF, 0x01)},
		{"full fields", raw("ABCDEFGH", "XYZ", 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)},
		{"high rights and flag bits", raw("a", "", 0, 0, 0, 0, 0x00, 0xFE, 0xF0)},
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		buf := make([]byte, FileHeaderSize)
		rnd.Read(buf[:28])
		tests = append(tests, struct {
			name string
			buf  []byte
		}{"random", buf})
	}

	for _, tt := range tests {
		fh, err := DecodeFileHeader(tt.buf)
		require.NoError(t, err, tt.name)

		encoded, err := fh.Encode()
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.buf, encoded, tt.name)
	}
}
