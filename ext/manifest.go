package ext

import (
	"errors"
	"sort"
)

// EngineName is the name a script uses to constrain the engine version
// itself rather than an extension.
const EngineName = "k6"

// Requirement is a version constraint on one extension.
type Requirement struct {
	Name       string     `json:"name" yaml:"name"`
	Constraint Constraint `json:"constraint" yaml:"constraint"`
	// Implicit is set for requirements derived from an import of an
	// extension module that no directive constrains.
	Implicit bool `json:"implicit,omitempty" yaml:"implicit,omitempty"`
}

// Manifest is the set of requirements declared by a script.
type Manifest struct {
	SourceID string `json:"source" yaml:"source"`
	// Engine constrains the engine version; the zero value accepts any.
	Engine       Constraint    `json:"engine" yaml:"engine"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
	// Imports are the module specifiers the script imports, in source order.
	Imports []string `json:"imports,omitempty" yaml:"imports,omitempty"`

	index map[string]int
}

// NewManifest returns an empty manifest for the given source.
func NewManifest(sourceID string) *Manifest {
	return &Manifest{SourceID: sourceID, Requirements: []Requirement{}, index: make(map[string]int)}
}

func (m *Manifest) lookup(name string) (int, bool) {
	if m.index == nil {
		m.index = make(map[string]int, len(m.Requirements))
		for i, r := range m.Requirements {
			m.index[r.Name] = i
		}
	}
	i, ok := m.index[name]
	return i, ok
}

// Require adds a constraint for the named extension. A second constraint on
// the same extension is merged with the first by intersection; if the two
// can never both hold, a *VersionConstraintError is returned.
func (m *Manifest) Require(name string, c Constraint) error {
	return m.require(NormalizeName(name), c, false)
}

func (m *Manifest) require(name string, c Constraint, implicit bool) error {
	i, ok := m.lookup(name)
	if !ok {
		if !c.IsAny() && !c.Satisfiable() {
			return &VersionConstraintError{Name: name, Constraint: c.String()}
		}
		m.index[name] = len(m.Requirements)
		m.Requirements = append(m.Requirements, Requirement{Name: name, Constraint: c, Implicit: implicit})
		return nil
	}

	cur := &m.Requirements[i]
	merged, err := cur.Constraint.Intersect(c)
	if err != nil {
		if errors.Is(err, ErrEmptyIntersection) {
			return &VersionConstraintError{Name: name, Constraint: cur.Constraint.String() + " && " + c.String()}
		}
		return err
	}
	cur.Constraint = merged
	cur.Implicit = cur.Implicit && implicit
	return nil
}

// RequireEngine adds a constraint on the engine version, merging it with any
// earlier one.
func (m *Manifest) RequireEngine(c Constraint) error {
	if m.Engine.IsAny() {
		if !c.IsAny() && !c.Satisfiable() {
			return &VersionConstraintError{Name: EngineName, Constraint: c.String()}
		}
		m.Engine = c
		return nil
	}
	merged, err := m.Engine.Intersect(c)
	if err != nil {
		if errors.Is(err, ErrEmptyIntersection) {
			return &VersionConstraintError{Name: EngineName, Constraint: m.Engine.String() + " && " + c.String()}
		}
		return err
	}
	m.Engine = merged
	return nil
}

// AddImport records a module specifier imported by the script. Imports of
// extension modules that have no explicit requirement get an implicit one
// accepting any version.
func (m *Manifest) AddImport(specifier string) {
	for _, imp := range m.Imports {
		if imp == specifier {
			return
		}
	}
	m.Imports = append(m.Imports, specifier)

	name, ok := ExtensionOf(specifier)
	if !ok {
		return
	}
	_ = m.require(name, Constraint{}, true) // intersecting with "*" can't fail
}

// Requirement returns the requirement on the named extension.
func (m *Manifest) Requirement(name string) (Requirement, bool) {
	i, ok := m.lookup(NormalizeName(name))
	if !ok {
		return Requirement{}, false
	}
	return m.Requirements[i], true
}

// Names returns the sorted names of all required extensions.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// ExtensionOf returns the extension name of an extension module specifier,
// e.g. "sql" for "k6/x/sql/driver/ramsql".
func ExtensionOf(specifier string) (string, bool) {
	if len(specifier) <= len(ModulePrefix) || specifier[:len(ModulePrefix)] != ModulePrefix {
		return "", false
	}
	name := specifier[len(ModulePrefix):]
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			name = name[:i]
			break
		}
	}
	if name == "" {
		return "", false
	}
	return name, true
}
