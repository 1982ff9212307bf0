// Package graph is a build dependency graph: targets, the rules that make
// them, and the edges between them. It is stored with persist, and is the
// reason persist supports non-owning pointers, polymorphic fields and
// versioned formats.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwbaker/persist"
)

const (
	Format = "forge.graph"

	// Version 2 added implicit dependencies.
	Version = 2
)

type Kind int

const (
	KindFile Kind = iota
	KindPhony
	KindGenerated
)

var kindFilter = persist.EnumFilter(
	persist.EnumEntry{Name: "File", Value: int64(KindFile)},
	persist.EnumEntry{Name: "Phony", Value: int64(KindPhony)},
	persist.EnumEntry{Name: "Generated", Value: int64(KindGenerated)},
)

func (k Kind) String() string {
	s, _ := kindFilter.ToArchive(nil, k)
	return s
}

type Flags uint32

const (
	FlagDefault Flags = 1 << iota
	FlagAlways
	FlagCleanable
	FlagPrecious
)

var flagsFilter = persist.MaskFilter(
	persist.EnumEntry{Name: "None", Value: 0},
	persist.EnumEntry{Name: "Default", Value: int64(FlagDefault)},
	persist.EnumEntry{Name: "Always", Value: int64(FlagAlways)},
	persist.EnumEntry{Name: "Cleanable", Value: int64(FlagCleanable)},
	persist.EnumEntry{Name: "Precious", Value: int64(FlagPrecious)},
)

func (f Flags) String() string {
	s, _ := flagsFilter.ToArchive(nil, f)
	return s
}

type Graph struct {
	ID        uuid.UUID
	Name      string
	Root      *Target
	Targets   []*Target
	Variables map[string]string
}

func New(name string) *Graph {
	return &Graph{ID: uuid.New(), Name: name}
}

func (g *Graph) Persist(ar *persist.Archive) {
	ar.Enter(Format, Version)
	ar.Value("id", &g.ID)
	ar.Value("name", &g.Name)
	ar.Values("variables", "variable", &g.Variables)
	ar.Values("targets", "target", &g.Targets)
	ar.Refer("root", &g.Root)
}

// Add returns the target at path, creating it with kind if it is new.
func (g *Graph) Add(path string, kind Kind) *Target {
	if t := g.Target(path); t != nil {
		return t
	}
	t := &Target{Path: path, Kind: kind, Graph: g}
	g.Targets = append(g.Targets, t)
	return t
}

func (g *Graph) Target(path string) *Target {
	for _, t := range g.Targets {
		if t.Path == path {
			return t
		}
	}
	return nil
}

type Target struct {
	Path         string
	Kind         Kind
	Flags        Flags
	Timestamp    time.Time
	Hash         uint64
	Graph        *Graph
	Parent       *Target
	Dependencies []*Target
	Implicit     []*Target
	Action       Action
	Description  []uint16
}

func (t *Target) Persist(ar *persist.Archive) {
	ar.Filtered("path", &t.Path, persist.PathFilter())
	ar.Filtered("kind", &t.Kind, kindFilter)
	ar.Filtered("flags", &t.Flags, flagsFilter)
	ar.Value("timestamp", &t.Timestamp)
	ar.Value("hash", &t.Hash)
	ar.Refer("graph", &t.Graph)
	ar.Refer("parent", &t.Parent)
	ar.References("dependencies", "dependency", &t.Dependencies)
	if ar.Version() >= 2 {
		ar.References("implicit", "dependency", &t.Implicit)
	}
	ar.Value("action", &t.Action)
	ar.Filtered("description", &t.Description, persist.Ucs2Filter())
}

func (t *Target) String() string {
	return t.Path
}

func (t *Target) DependOn(deps ...*Target) {
	t.Dependencies = appendNew(t.Dependencies, deps)
}

func (t *Target) DependImplicitlyOn(deps ...*Target) {
	t.Implicit = appendNew(t.Implicit, deps)
}

func appendNew(list, deps []*Target) []*Target {
	for _, d := range deps {
		if !slices.Contains(list, d) {
			list = append(list, d)
		}
	}
	return list
}

func (t *Target) SetDescription(s string) {
	t.Description = persist.UTF8ToUCS2(s)
}

func (t *Target) DescriptionString() string {
	return persist.UCS2ToUTF8(t.Description)
}

// CycleError reports a dependency cycle; Path starts and ends at the same
// target.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Order returns the targets reachable from roots (all targets when roots
// is empty) with every target after its dependencies.
func (g *Graph) Order(roots ...*Target) ([]*Target, error) {
	if len(roots) == 0 {
		roots = g.Targets
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[*Target]int, len(g.Targets))
	var order []*Target
	var stack []*Target

	var visit func(t *Target) error
	visit = func(t *Target) error {
		switch state[t] {
		case done:
			return nil
		case visiting:
			i := slices.Index(stack, t)
			var path []string
			for _, s := range stack[i:] {
				path = append(path, s.Path)
			}
			return &CycleError{Path: append(path, t.Path)}
		}
		state[t] = visiting
		stack = append(stack, t)
		for _, deps := range [][]*Target{t.Dependencies, t.Implicit} {
			for _, d := range deps {
				if d == nil {
					continue
				}
				if err := visit(d); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[t] = done
		order = append(order, t)
		return nil
	}

	for _, t := range roots {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Outdated returns, in build order, the targets that need building: those
// never built, those marked Always, and those older than a dependency or
// depending on an outdated target.
func (g *Graph) Outdated() ([]*Target, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	stale := make(map[*Target]bool)
	var result []*Target
	for _, t := range order {
		s := t.Kind != KindFile && (t.Timestamp.IsZero() || t.Flags&FlagAlways != 0)
		for _, deps := range [][]*Target{t.Dependencies, t.Implicit} {
			for _, d := range deps {
				if d != nil && (stale[d] || d.Timestamp.After(t.Timestamp)) {
					s = true
				}
			}
		}
		if s {
			stale[t] = true
			result = append(result, t)
		}
	}
	return result, nil
}
