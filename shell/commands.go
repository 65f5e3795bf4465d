package shell

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PapiCZ/meowfs/config"
	"github.com/PapiCZ/meowfs/vfs"
	"github.com/PapiCZ/meowfs/vfsapi"
	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

func Format(c *ishell.Context) {
	if len(c.Args) > 1 {
		c.Println("expected at most 1 argument")
		return
	}

	st := getState(c)

	var size vfs.VolumePtr
	if len(c.Args) == 1 {
		var err error
		size, err = config.ParseSize(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
	}

	opts, err := st.Config.FormatOptions(size)
	if err != nil {
		c.Err(err)
		return
	}

	err = st.Format(opts)
	if err != nil {
		c.Err(err)
		return
	}

	c.SetPrompt(st.Prompt())
	c.Println("OK")
}

func Mkdir(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	_, err = vfsapi.Mkdir(s, s.Abs(c.Args[0]), st.Config.Owner.Uid, st.Config.Owner.Gid, st.Now())
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje zadaná cesta)")
		return
	}
	c.Println("OK")
}

const listTimeFormat = "02.01.2006 15:04:05"

func Ls(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := "."
	if len(c.Args) == 1 {
		path = c.Args[0]
	}

	files, err := vfsapi.ReadDir(s, s.Abs(path), st.Config.ShowHidden)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistující adresář)")
		return
	}

	for _, v := range files {
		fh := v.Header()
		if v.IsDir() {
			c.Printf("+ %s %s %s\n", fh.RightsString(), v.ModTime().Format(listTimeFormat), v.Name())
		} else {
			c.Printf("- %s %s %s %d\n", fh.RightsString(), v.ModTime().Format(listTimeFormat), v.Name(), v.Size())
		}
	}
}

// Lsdel lists the deleted entries that can still be restored.
func Lsdel(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := "."
	if len(c.Args) == 1 {
		path = c.Args[0]
	}

	files, err := vfsapi.ReadDeleted(s, s.Abs(path))
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistující adresář)")
		return
	}

	for _, v := range files {
		c.Printf("%s %d @%d\n", v.Name(), v.Size(), v.Offset())
	}
}

func Pwd(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := s.CurrentDirectory().Path
	if path == "" {
		path = vfsapi.PathSeparator
	}
	c.Println(path)
}

func Cd(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	err = s.ChangeDirectory(c.Args[0])
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistující cesta)")
		return
	}

	c.SetPrompt(st.Prompt())
}

func Cat(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	fh, err := vfsapi.GetFileHeaderByPath(s, s.Abs(c.Args[0]))
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}
	if fh.IsDirectory() {
		c.Println("IS A DIRECTORY")
		return
	}

	data, err := vfsapi.ReadFileHeader(s, fh)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}
	c.Printf("%s\n", data)
}

func Incp(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	if _, err := st.session(); err != nil {
		c.Err(err)
		return
	}

	hostSrc := c.Args[0]
	data, err := afero.ReadFile(st.Host, hostSrc)
	if err != nil {
		c.Println("FILE NOT FOUND (není zdroj)")
		return
	}

	dir, name := st.target(c.Args[1], filepath.Base(hostSrc))
	fh, err := st.newHeader(name, 0)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}

	err = st.writeFile(dir, &fh, data)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}
	c.Println("OK")
}

func Outcp(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	fh, err := vfsapi.GetFileHeaderByPath(s, s.Abs(c.Args[0]))
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}
	if fh.IsDirectory() {
		c.Println("DIRECTORY CANNOT BE COPIED")
		return
	}

	data, err := vfsapi.ReadFileHeader(s, fh)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}

	err = afero.WriteFile(st.Host, c.Args[1], data, 0644)
	if err != nil {
		c.Println("PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}
	c.Println("OK")
}

// Rm removes a file or an empty directory for good.
func Rm(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := s.Abs(c.Args[0])
	fh, err := vfsapi.GetFileHeaderByPath(s, path)
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	if fh.IsDirectory() {
		files, err := vfsapi.ReadDir(s, path, true)
		if err != nil {
			printError(c, err, "FILE NOT FOUND")
			return
		}
		if len(files) > 0 {
			c.Println("NOT EMPTY (adresář obsahuje podadresáře, nebo soubory)")
			return
		}
	}

	err = vfsapi.RemoveFile(s, path)
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

// Del marks an entry as deleted. It can be brought back with undel until
// it is purged or the volume is repaired.
func Del(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := s.Abs(c.Args[0])
	fh, err := vfsapi.GetFileHeaderByPath(s, path)
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	if path == "" {
		c.Println("CANNOT DELETE ROOT DIRECTORY")
		return
	}

	dir, _ := vfsapi.SplitLast(path)
	err = vfsapi.DeleteFile(s, dir, fh)
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

func Undel(c *ishell.Context) {
	if len(c.Args) != 2 || len(c.Args[1]) != 1 {
		c.Println("expected 2 arguments: deleted name and its first character")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	dir, name := vfsapi.SplitLast(s.Abs(c.Args[0]))
	fh, err := vfsapi.RestoreFile(s, dir, name, c.Args[1][0])
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Printf("restored %s\n", fh.DisplayName())
}

func Purge(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	dir, name := vfsapi.SplitLast(s.Abs(c.Args[0]))
	err = vfsapi.ReclaimFile(s, dir, name)
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

func Mv(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	src := s.Abs(c.Args[0])
	fh, err := vfsapi.GetFileHeaderByPath(s, src)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}

	dir, name := st.target(c.Args[1], fh.DisplayName())
	err = vfsapi.Move(s, src, dir)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}

	if name != fh.DisplayName() {
		_, err = vfsapi.Rename(s, vfsapi.Join(dir, fh.DisplayName()), name)
		if err != nil {
			printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
			return
		}
	}
	c.Println("OK")
}

func Cp(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	fh, err := vfsapi.GetFileHeaderByPath(s, s.Abs(c.Args[0]))
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}
	if fh.IsDirectory() {
		c.Println("DIRECTORY CANNOT BE COPIED")
		return
	}

	dir, name := st.target(c.Args[1], fh.DisplayName())
	if _, err := vfsapi.GetFileHeaderByPath(s, vfsapi.Join(dir, name)); err != nil && name == fh.DisplayName() {
		_, err = vfsapi.Copy(s, s.Abs(c.Args[0]), dir)
		if err != nil {
			printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
			return
		}
		c.Println("OK")
		return
	}

	data, err := vfsapi.ReadFileHeader(s, fh)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}

	copied, err := st.newHeader(name, fh.Flags)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}
	copied.AccessRights = fh.AccessRights

	err = st.writeFile(dir, &copied, data)
	if err != nil {
		printError(c, err, "PATH NOT FOUND (neexistuje cílová cesta)")
		return
	}
	c.Println("OK")
}

func Rename(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	_, err = vfsapi.Rename(s, s.Abs(c.Args[0]), c.Args[1])
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

func Chmod(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("expected 2 arguments")
		return
	}

	st := getState(c)
	if _, err := st.session(); err != nil {
		c.Err(err)
		return
	}

	rights, err := parseMode(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}

	err = st.updateHeader(c.Args[1], func(fh *vfs.FileHeader) error {
		fh.SetRights(rights)
		return nil
	})
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

// Attrib toggles the read-only, hidden and system flags, e.g. attrib +h -r file.
func Attrib(c *ishell.Context) {
	if len(c.Args) < 2 {
		c.Println("expected flags and a path")
		return
	}

	st := getState(c)
	if _, err := st.session(); err != nil {
		c.Err(err)
		return
	}

	changes, err := parseAttrib(c.Args[:len(c.Args)-1])
	if err != nil {
		c.Err(err)
		return
	}

	err = st.updateHeader(c.Args[len(c.Args)-1], func(fh *vfs.FileHeader) error {
		for _, change := range changes {
			fh.SetFlag(change.flag, change.value)
		}
		return nil
	})
	if err != nil {
		printError(c, err, "FILE NOT FOUND")
		return
	}
	c.Println("OK")
}

func Info(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	path := s.Abs(c.Args[0])
	if path == "" {
		sb := s.Superblock()
		c.Printf("%s %s v%d\n", sb.Label(), sb.ID(), sb.Version)
		c.Printf("cluster size %d, %d clusters, root at %d (%d entries), data at %d\n",
			sb.ClusterSize, sb.ClusterCount, sb.RootStartAddress, sb.RootEntries(), sb.DataStartAddress)
		return
	}

	fh, err := vfsapi.GetFileHeaderByPath(s, path)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}

	clusters, err := s.Filesystem().Fat.Clusters(fh.FirstCluster)
	if err != nil {
		printError(c, err, "FILE NOT FOUND (není zdroj)")
		return
	}

	c.Println(fh.String())
	c.Printf("flags %s\n", flagsString(fh))
	c.Println("Clusters")
	c.Println(strings.Join(ClusterPtrsToStrings(clusters), " "))
}

func Check(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	report, err := vfsapi.FsCheck(s)
	if err != nil {
		printError(c, err, "")
		return
	}

	if report.Clean() {
		c.Println("OK")
		return
	}

	c.Printf("orphaned clusters: %s\n", strings.Join(ClusterPtrsToStrings(report.Orphans), " "))
	c.Printf("cross-linked clusters: %s\n", strings.Join(ClusterPtrsToStrings(report.CrossLinks), " "))
	c.Printf("broken chains: %s\n", strings.Join(report.BrokenChains, " "))
	c.Printf("truncated files: %s\n", strings.Join(report.Truncated, " "))
}

func Repair(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	reclaimed, err := vfsapi.Repair(s)
	if err != nil {
		printError(c, err, "")
		return
	}
	c.Printf("reclaimed %d clusters\n", reclaimed)
}

func Df(c *ishell.Context) {
	st := getState(c)
	s, err := st.session()
	if err != nil {
		c.Err(err)
		return
	}

	usage, err := vfsapi.Usage(s)
	if err != nil {
		printError(c, err, "")
		return
	}

	c.Printf("clusters: %d free of %d (%d bytes free)\n", usage.FreeClusters, usage.DataClusters, usage.FreeBytes())
	c.Printf("root entries: %d free of %d\n", usage.FreeRootSlots, usage.RootEntries)
}

// Load runs the commands of a host file line by line.
func Load(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("expected 1 argument")
		return
	}

	st := getState(c)
	shell := c.Get("shell").(*ishell.Shell)

	bytes, err := afero.ReadFile(st.Host, c.Args[0])
	if err != nil {
		c.Println("FILE NOT FOUND (není zdroj)")
		return
	}

	for _, cmd := range strings.Split(string(bytes), "\n") {
		cmd = strings.TrimSpace(cmd)
		if len(cmd) == 0 || strings.HasPrefix(cmd, "#") {
			continue
		}
		c.Println(cmd)

		err = shell.Process(strings.Fields(cmd)...)
		if err != nil {
			c.Err(err)
			return
		}
	}
}

// updateHeader rewrites the slot of the entry at path in place.
func (st *State) updateHeader(path string, update func(fh *vfs.FileHeader) error) error {
	s := st.Session

	abs := s.Abs(path)
	if abs == "" {
		return vfs.NewError(vfs.InvalidPath, vfsapi.PathSeparator, "the root directory has no entry")
	}

	fh, dirCluster, err := vfsapi.Resolve(s.Filesystem(), abs, s.Superblock().RootCluster())
	if err != nil {
		return err
	}

	offset, err := vfsapi.GetFileHeaderOffset(s, fh.DisplayName(), dirCluster)
	if err != nil {
		return err
	}

	err = update(&fh)
	if err != nil {
		return err
	}
	_ = fh.SetChangeTime(st.Now())

	buf, err := fh.Encode()
	if err != nil {
		return err
	}

	return vfsapi.WriteBytes(s, offset, buf)
}

func flagsString(fh vfs.FileHeader) string {
	flags := []byte("----")
	if fh.IsDirectory() {
		flags[0] = 'd'
	}
	if fh.IsReadOnly() {
		flags[1] = 'r'
	}
	if fh.IsHidden() {
		flags[2] = 'h'
	}
	if fh.IsSystem() {
		flags[3] = 's'
	}
	return string(flags)
}

func parseMode(mode string) (uint16, error) {
	rights, err := strconv.ParseUint(mode, 8, 16)
	if err != nil || rights > 0777 {
		return 0, errors.Errorf("mode %q must be octal between 000 and 777", mode)
	}
	return uint16(rights), nil
}
