package graph

import (
	"strings"

	"github.com/cwbaker/persist"
)

// Action is the rule that builds a target. Actions are stored behind the
// interface, so every implementation is declared in Types.
type Action interface {
	Command(t *Target) []string
}

type Compile struct {
	Compiler string
	Flags    []string
	Defines  map[string]string
}

func (c *Compile) Persist(ar *persist.Archive) {
	ar.Value("compiler", &c.Compiler)
	ar.Values("flags", "flag", &c.Flags)
	ar.Values("defines", "define", &c.Defines)
}

func (c *Compile) Command(t *Target) []string {
	cmd := []string{c.Compiler}
	cmd = append(cmd, c.Flags...)
	for _, k := range sortedKeys(c.Defines) {
		if v := c.Defines[k]; v != "" {
			cmd = append(cmd, "-D"+k+"="+v)
		} else {
			cmd = append(cmd, "-D"+k)
		}
	}
	cmd = append(cmd, "-c", "-o", t.Path)
	for _, d := range t.Dependencies {
		cmd = append(cmd, d.Path)
	}
	return cmd
}

type Link struct {
	Linker    string
	Libraries []string
}

func (l *Link) Persist(ar *persist.Archive) {
	ar.Value("linker", &l.Linker)
	ar.Values("libraries", "library", &l.Libraries)
}

func (l *Link) Command(t *Target) []string {
	cmd := []string{l.Linker, "-o", t.Path}
	for _, d := range t.Dependencies {
		cmd = append(cmd, d.Path)
	}
	for _, lib := range l.Libraries {
		cmd = append(cmd, "-l"+lib)
	}
	return cmd
}

type Copy struct {
	Mode uint32
}

func (c *Copy) Persist(ar *persist.Archive) {
	ar.Value("mode", &c.Mode)
}

func (c *Copy) Command(t *Target) []string {
	if len(t.Dependencies) == 0 {
		return nil
	}
	return []string{"cp", t.Dependencies[0].Path, t.Path}
}

// Types returns a registry with the graph's polymorphic types declared.
func Types() *persist.Registry {
	reg := persist.NewRegistry()
	persist.Declare[Compile](reg, "compile", persist.Polymorphic)
	persist.Declare[Link](reg, "link", persist.Polymorphic)
	persist.Declare[Copy](reg, "copy", persist.Polymorphic)
	return reg
}

func commandString(cmd []string) string {
	return strings.Join(cmd, " ")
}

// Plan returns the commands that bring the graph up to date, in build
// order. Outdated targets without an action are skipped.
func (g *Graph) Plan() ([]string, error) {
	outdated, err := g.Outdated()
	if err != nil {
		return nil, err
	}
	var plan []string
	for _, t := range outdated {
		if t.Action == nil {
			continue
		}
		if cmd := t.Action.Command(t); len(cmd) > 0 {
			plan = append(plan, commandString(cmd))
		}
	}
	return plan, nil
}
