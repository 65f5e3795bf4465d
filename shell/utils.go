package shell

import (
	"strconv"

	"github.com/PapiCZ/meowfs/vfs"
	"github.com/PapiCZ/meowfs/vfsapi"
	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func ClusterPtrsToStrings(ptrs []vfs.ClusterPtr) []string {
	strs := make([]string, 0)
	for _, ptr := range ptrs {
		strs = append(strs, strconv.Itoa(int(ptr)))
	}

	return strs
}

// errorMessage turns an engine error into the line shown to the user. An
// empty result means the error has no short form.
func errorMessage(err error, notFound string) string {
	if errors.Is(err, vfsapi.ErrSessionClosed) || errors.Is(err, ErrNoVolume) {
		return "NO VOLUME (use format first)"
	}

	switch vfs.KindOf(err) {
	case vfs.InvalidPath:
		if notFound == "" {
			return "PATH NOT FOUND"
		}
		return notFound
	case vfs.FileAlreadyExists:
		return "EXIST (nelze založit, již existuje)"
	case vfs.RootDirectoryOutOfSpace:
		return "ROOT DIRECTORY FULL"
	case vfs.DiskOutOfSpace:
		return "NOT ENOUGH AVAILABLE SPACE"
	case vfs.CorruptionDetected:
		return "CORRUPTION DETECTED (use check and repair)"
	default:
		return ""
	}
}

func printError(c *ishell.Context, err error, notFound string) {
	log.WithError(err).Debug("command failed")

	msg := errorMessage(err, notFound)
	if msg == "" {
		c.Err(err)
		return
	}
	c.Println(msg)
}

type flagChange struct {
	flag  byte
	value bool
}

// parseAttrib reads switches like +h, -r or +s.
func parseAttrib(args []string) ([]flagChange, error) {
	changes := make([]flagChange, 0, len(args))
	for _, arg := range args {
		if len(arg) != 2 || (arg[0] != '+' && arg[0] != '-') {
			return nil, errors.Errorf("invalid attribute switch %q", arg)
		}

		var flag byte
		switch arg[1] {
		case 'r':
			flag = vfs.FlagReadOnly
		case 'h':
			flag = vfs.FlagHidden
		case 's':
			flag = vfs.FlagSystem
		default:
			return nil, errors.Errorf("unknown attribute %q", arg[1:])
		}

		changes = append(changes, flagChange{flag: flag, value: arg[0] == '+'})
	}
	return changes, nil
}
