package shell

import (
	"github.com/abiosoft/ishell"
)

type command struct {
	name string
	help string
	fn   func(c *ishell.Context)
}

var commands = []command{
	{"format", "format [size] - create an empty volume", Format},
	{"mkdir", "mkdir <path>", Mkdir},
	{"ls", "ls [path]", Ls},
	{"lsdel", "lsdel [path] - list deleted entries", Lsdel},
	{"pwd", "pwd", Pwd},
	{"cd", "cd <path>", Cd},
	{"cat", "cat <path>", Cat},
	{"incp", "incp <host file> <path>", Incp},
	{"outcp", "outcp <path> <host file>", Outcp},
	{"rm", "rm <path> - remove a file or an empty directory", Rm},
	{"del", "del <path> - delete, keeping the data for undel", Del},
	{"undel", "undel <$name> <first character>", Undel},
	{"purge", "purge <$name> - release the data of a deleted entry", Purge},
	{"mv", "mv <path> <path>", Mv},
	{"cp", "cp <path> <path>", Cp},
	{"rename", "rename <path> <name>", Rename},
	{"chmod", "chmod <octal mode> <path>", Chmod},
	{"attrib", "attrib <+r|-r|+h|-h|+s|-s>... <path>", Attrib},
	{"info", "info <path> - entry details, / for the volume", Info},
	{"check", "check - verify the allocation table", Check},
	{"repair", "repair - reclaim unreachable clusters and deleted entries", Repair},
	{"df", "df - free space", Df},
	{"load", "load <host file> - run commands from a file", Load},
}

// New returns a shell bound to st with every volume command registered.
func New(st *State) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(st.Prompt())
	sh.Set(stateKey, st)
	sh.Set("shell", sh)

	for _, cmd := range commands {
		sh.AddCmd(&ishell.Cmd{
			Name: cmd.name,
			Help: cmd.help,
			Func: cmd.fn,
		})
	}

	return sh
}
