package vfsapi

import (
	"github.com/PapiCZ/meowfs/vfs"
	log "github.com/sirupsen/logrus"
)

// CheckReport lists the inconsistencies FsCheck found. Nothing is modified.
type CheckReport struct {
	// Used clusters no entry reaches
	Orphans []vfs.ClusterPtr
	// Clusters reached from more than one entry
	CrossLinks []vfs.ClusterPtr
	// Entries whose chain cannot be followed
	BrokenChains []string
	// Files whose size exceeds their chain
	Truncated []string
}

func (r CheckReport) Clean() bool {
	return len(r.Orphans) == 0 && len(r.CrossLinks) == 0 && len(r.BrokenChains) == 0 && len(r.Truncated) == 0
}

// FsCheck walks the whole directory tree, tombstoned entries included, and
// compares the clusters it reaches with the allocation table.
func FsCheck(s *Session) (CheckReport, error) {
	fs, err := s.filesystem()
	if err != nil {
		return CheckReport{}, err
	}

	var report CheckReport
	owners := make(map[vfs.ClusterPtr]int)
	err = checkDirectory(fs, fs.Superblock.RootCluster(), "", owners, make(map[vfs.ClusterPtr]bool), &report)
	if err != nil {
		return CheckReport{}, err
	}

	for c := fs.Superblock.FirstDataCluster(); int(c) < fs.Fat.Len(); c++ {
		value, err := fs.Fat.Get(c)
		if err != nil {
			return CheckReport{}, err
		}

		if value != vfs.ClusterFree && owners[c] == 0 {
			report.Orphans = append(report.Orphans, c)
		}
	}

	log.WithFields(log.Fields{
		"orphans":    len(report.Orphans),
		"crosslinks": len(report.CrossLinks),
		"broken":     len(report.BrokenChains),
		"truncated":  len(report.Truncated),
	}).Debug("checked filesystem")

	return report, nil
}

func checkDirectory(fs *vfs.Filesystem, cluster vfs.ClusterPtr, path string, owners map[vfs.ClusterPtr]int, visited map[vfs.ClusterPtr]bool, report *CheckReport) error {
	if visited[cluster] {
		return nil
	}
	visited[cluster] = true

	slots, err := fs.ReadDirectory(cluster)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		if slot.State == vfs.SlotFree {
			continue
		}

		fh := slot.Header
		entryPath := path + PathSeparator + fh.DisplayName()
		if fh.FirstCluster == vfs.ClusterFree {
			if fh.IsDirectory() || fh.Size > 0 {
				report.BrokenChains = append(report.BrokenChains, entryPath)
			}
			continue
		}

		clusters, err := fs.Fat.Clusters(fh.FirstCluster)
		if err != nil {
			report.BrokenChains = append(report.BrokenChains, entryPath)
			continue
		}

		for _, c := range clusters {
			owners[c]++
			if owners[c] == 2 {
				report.CrossLinks = append(report.CrossLinks, c)
			}
		}

		if fh.IsDirectory() {
			err = checkDirectory(fs, fh.FirstCluster, entryPath, owners, visited, report)
			if err != nil {
				return err
			}
		} else if int(fh.Size) > len(clusters)*int(fs.Superblock.ClusterSize) {
			report.Truncated = append(report.Truncated, entryPath)
		}
	}

	return nil
}
