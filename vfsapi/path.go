package vfsapi

import (
	"strings"

	"github.com/PapiCZ/meowfs/vfs"
)

const PathSeparator = "/"

// Normalize collapses repeated separators. The result is "" for the root or
// "/a/b" for anything below it.
func Normalize(path string) string {
	var sb strings.Builder
	for _, part := range strings.Split(path, PathSeparator) {
		if len(part) == 0 {
			continue
		}
		sb.WriteString(PathSeparator)
		sb.WriteString(part)
	}
	return sb.String()
}

// SplitLast detaches the last component. The parent of a path without any
// separator is the root.
func SplitLast(path string) (string, string) {
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Join resolves path against base. Absolute paths ignore base; "." and ".."
// are applied lexically and never climb above the root.
func Join(base, path string) string {
	if !strings.HasPrefix(path, PathSeparator) {
		path = base + PathSeparator + path
	}

	parts := make([]string, 0)
	for _, part := range strings.Split(path, PathSeparator) {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}

	return Normalize(strings.Join(parts, PathSeparator))
}

// RootHeader is the synthetic entry standing for the root directory, which
// has no slot of its own.
func RootHeader(fs *vfs.Filesystem) vfs.FileHeader {
	return directoryHeader(fs.Superblock.RootCluster())
}

func directoryHeader(cluster vfs.ClusterPtr) vfs.FileHeader {
	return vfs.FileHeader{
		Flags:        vfs.FlagDirectory,
		AccessRights: vfs.DefaultRights,
		FirstCluster: cluster,
	}
}

// resolved is a path resolution result. For the empty path there is no slot
// and Self is the start directory.
type resolved struct {
	Slot         vfs.DirectorySlot
	OwnerCluster vfs.ClusterPtr
	Self         bool
}

func (r resolved) Header() vfs.FileHeader {
	if r.Self {
		return directoryHeader(r.OwnerCluster)
	}
	return r.Slot.Header
}

// Resolve walks path from startCluster and returns the entry together with
// the cluster of the directory that owns it.
func Resolve(fs *vfs.Filesystem, path string, startCluster vfs.ClusterPtr) (vfs.FileHeader, vfs.ClusterPtr, error) {
	r, err := resolve(fs, path, startCluster)
	if err != nil {
		return vfs.FileHeader{}, 0, err
	}
	return r.Header(), r.OwnerCluster, nil
}

func resolve(fs *vfs.Filesystem, path string, startCluster vfs.ClusterPtr) (resolved, error) {
	path = Normalize(path)
	if path == "" {
		return resolved{OwnerCluster: startCluster, Self: true}, nil
	}

	fragments := strings.Split(path[1:], PathSeparator)
	current := startCluster
	var slot vfs.DirectorySlot
	for i, fragment := range fragments {
		var err error
		slot, err = fs.FindSlotByName(current, fragment)
		if err != nil {
			if vfs.IsKind(err, vfs.InvalidPath) {
				return resolved{}, vfs.NewError(vfs.InvalidPath, path, "%s not found", fragment)
			}
			return resolved{}, err
		}

		if i == len(fragments)-1 {
			break
		}

		// Check if the component can be descended into
		if !slot.Header.IsDirectory() {
			return resolved{}, vfs.NewError(vfs.InvalidPath, path, "%s is not a directory", fragment)
		}
		if slot.Header.FirstCluster == vfs.ClusterFree {
			return resolved{}, vfs.NewError(vfs.CorruptionDetected, path, "directory %s has no clusters", fragment)
		}
		current = slot.Header.FirstCluster
	}

	return resolved{Slot: slot, OwnerCluster: current}, nil
}

// resolveDirectory resolves path and requires a directory; it returns the
// first cluster of its listing.
func resolveDirectory(fs *vfs.Filesystem, path string) (vfs.ClusterPtr, error) {
	r, err := resolve(fs, path, fs.Superblock.RootCluster())
	if err != nil {
		return 0, err
	}

	fh := r.Header()
	if !fh.IsDirectory() {
		return 0, vfs.NewError(vfs.InvalidPath, Normalize(path), "not a directory")
	}

	return fh.FirstCluster, nil
}
