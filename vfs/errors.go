package vfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is the closed set of storage failures reported by the engine.
type ErrorKind int

const (
	// Unknown is returned by KindOf for errors that did not come from the engine.
	Unknown ErrorKind = iota
	InvalidPath
	FileAlreadyExists
	RootDirectoryOutOfSpace
	DiskOutOfSpace
	CorruptionDetected
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidPath:
		return "invalid path"
	case FileAlreadyExists:
		return "file already exists"
	case RootDirectoryOutOfSpace:
		return "root directory out of space"
	case DiskOutOfSpace:
		return "disk out of space"
	case CorruptionDetected:
		return "corruption detected"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   ErrorKind
	Path   string
	Detail string
}

func (e Error) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func NewError(kind ErrorKind, path string, format string, args ...interface{}) Error {
	return Error{
		Kind:   kind,
		Path:   path,
		Detail: fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the engine error wrapped anywhere in err.
func KindOf(err error) ErrorKind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

type OutOfRange struct {
	index    int
	maxIndex int
}

func (o OutOfRange) Error() string {
	return fmt.Sprintf("index out of range [%d], maximal index is [%d]", o.index, o.maxIndex)
}
