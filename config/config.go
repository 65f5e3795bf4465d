// Package config holds the settings used to format and browse volumes.
package config

import (
	"strings"

	"github.com/PapiCZ/meowfs/vfs"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	DefaultClusterSize = 512
	DefaultRootEntries = 64
	DefaultVolumeSize  = "10MB"
	DefaultLabel       = "MEOWFS"
	DefaultLogLevel    = "info"
)

type Owner struct {
	Uid uint16 `yaml:"uid"`
	Gid uint16 `yaml:"gid"`
}

type Config struct {
	ClusterSize uint16 `yaml:"cluster_size"`
	RootEntries int    `yaml:"root_entries"`
	VolumeSize  string `yaml:"volume_size"`
	Label       string `yaml:"label"`
	Owner       Owner  `yaml:"owner"`
	ShowHidden  bool   `yaml:"show_hidden"`
	LogLevel    string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		ClusterSize: DefaultClusterSize,
		RootEntries: DefaultRootEntries,
		VolumeSize:  DefaultVolumeSize,
		Label:       DefaultLabel,
		LogLevel:    DefaultLogLevel,
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults.
func Load(afs afero.Fs, path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := afero.ReadFile(afs, path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}

	err = yaml.UnmarshalStrict(data, &c)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}

	err = c.Validate()
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}

	log.WithField("path", path).Debug("loaded config")

	return c, nil
}

func (c Config) Validate() error {
	if c.ClusterSize < vfs.MinClusterSize || c.ClusterSize%vfs.DirectoryEntrySize != 0 {
		return errors.Errorf("cluster_size %d must be a multiple of %d and at least %d", c.ClusterSize, vfs.DirectoryEntrySize, vfs.MinClusterSize)
	}
	if c.RootEntries <= 0 {
		return errors.Errorf("root_entries must be positive, got %d", c.RootEntries)
	}
	if len(c.Label) > vfs.VolumeLabelLength {
		return errors.Errorf("label %q is longer than %d characters", c.Label, vfs.VolumeLabelLength)
	}
	if _, err := ParseSize(c.VolumeSize); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// FormatOptions returns the options for formatting a volume of size bytes.
// A zero size uses VolumeSize.
func (c Config) FormatOptions(size vfs.VolumePtr) (vfs.FormatOptions, error) {
	if size == 0 {
		var err error
		size, err = ParseSize(c.VolumeSize)
		if err != nil {
			return vfs.FormatOptions{}, err
		}
	}

	return vfs.FormatOptions{
		Label:       c.Label,
		Size:        size,
		ClusterSize: c.ClusterSize,
		RootEntries: c.RootEntries,
	}, nil
}

// ParseSize understands plain byte counts and decimal suffixes like 64KB,
// 10MB or 1.5G.
func ParseSize(s string) (vfs.VolumePtr, error) {
	size, err := units.FromHumanSize(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return vfs.VolumePtr(size), nil
}
