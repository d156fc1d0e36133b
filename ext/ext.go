// Package ext holds the extensions available to scripts and resolves the
// requirements a script declares to concrete extension versions.
//
// Extensions are registered once at process start, usually from the init()
// function of the package implementing them:
//
//	func init() {
//		ext.Register(ext.Descriptor{
//			Name:     "sql",
//			Versions: []string{"1.0.0"},
//			Exports: map[string]interface{}{
//				"":              sql.New(),
//				"driver/ramsql": sqldb.New("ramsql"),
//			},
//		})
//	}
//
// The registry is read-only once script resolution starts.
package ext

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"

	"github.com/liuxd6825/k6x/driver"
)

// ModulePrefix is the prefix of every extension module specifier.
const ModulePrefix = EngineName + "/x/"

// DriverExportPrefix is the export subpath under which driver variants live.
// Exports below it are checked against the driver capability set when the
// extension is registered.
const DriverExportPrefix = "driver"

// Descriptor describes an extension: its name, the versions that can be
// resolved and the modules it exports. The empty subpath is the root export.
type Descriptor struct {
	Name     string
	Versions []string
	Exports  map[string]interface{}
}

// Extension is a registered, validated Descriptor.
type Extension struct {
	Name string
	// Versions are sorted from the highest to the lowest.
	Versions []*semver.Version
	Exports  map[string]interface{}
}

// VersionStrings returns the versions of the extension, highest first.
func (e *Extension) VersionStrings() []string {
	return lo.Map(e.Versions, func(v *semver.Version, _ int) string { return v.String() })
}

// ExportNames returns the sorted export subpaths; the root export is "".
func (e *Extension) ExportNames() []string {
	names := lo.Keys(e.Exports)
	sort.Strings(names)
	return names
}

func (e *Extension) String() string {
	return fmt.Sprintf("%s [%s]", e.Name, strings.Join(e.VersionStrings(), ", "))
}

// NormalizeName strips the module prefix from an extension name, so that
// "k6/x/sql" and "sql" name the same extension.
func NormalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), ModulePrefix)
}

// CleanSubpath normalizes an export subpath; the root export is "".
func CleanSubpath(subpath string) string {
	subpath = strings.Trim(subpath, "/")
	if subpath == "" {
		return ""
	}
	return path.Clean(subpath)
}

// Registry holds the extensions available for resolution.
type Registry struct {
	mx         sync.RWMutex
	extensions map[string]*Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extensions: make(map[string]*Extension)}
}

// Register validates desc and adds it to the registry.
func (r *Registry) Register(desc Descriptor) error {
	e, err := newExtension(desc)
	if err != nil {
		return err
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.extensions[e.Name]; ok {
		return fmt.Errorf("extension already registered: %s", e.Name)
	}
	r.extensions[e.Name] = e
	return nil
}

func newExtension(desc Descriptor) (*Extension, error) {
	name := NormalizeName(desc.Name)
	if name == "" {
		return nil, errors.New("extension name must not be empty")
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("extension name %q must not contain '/'", name)
	}
	if len(desc.Versions) == 0 {
		return nil, fmt.Errorf("extension %q has no versions", name)
	}

	e := &Extension{
		Name:     name,
		Versions: make([]*semver.Version, 0, len(desc.Versions)),
		Exports:  make(map[string]interface{}, len(desc.Exports)),
	}

	seen := make(map[string]struct{}, len(desc.Versions))
	for _, s := range desc.Versions {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("extension %q has an invalid version %q: %w", name, s, err)
		}
		if _, dup := seen[v.String()]; dup {
			continue
		}
		seen[v.String()] = struct{}{}
		e.Versions = append(e.Versions, v)
	}
	sort.Sort(sort.Reverse(semver.Collection(e.Versions)))

	for subpath, mod := range desc.Exports {
		subpath = CleanSubpath(subpath)
		if mod == nil {
			return nil, fmt.Errorf("extension %q exports nil at %q", name, subpath)
		}
		if isDriverSubpath(subpath) {
			if _, ok := mod.(driver.Driver); !ok {
				return nil, &driver.DriverError{
					Kind: driver.InvalidDriver,
					Err: fmt.Errorf("export %q of extension %q is a %T, which does not implement the driver capability set",
						subpath, name, mod),
				}
			}
		}
		e.Exports[subpath] = mod
	}

	return e, nil
}

func isDriverSubpath(subpath string) bool {
	return subpath == DriverExportPrefix || strings.HasPrefix(subpath, DriverExportPrefix+"/")
}

// Get returns the named extension.
func (r *Registry) Get(name string) (*Extension, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	e, ok := r.extensions[NormalizeName(name)]
	return e, ok
}

// Names returns the sorted names of all registered extensions.
func (r *Registry) Names() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	names := lo.Keys(r.extensions)
	sort.Strings(names)
	return names
}

// All returns all registered extensions, sorted by name.
func (r *Registry) All() []*Extension {
	names := r.Names()

	r.mx.RLock()
	defer r.mx.RUnlock()
	return lo.Map(names, func(name string, _ int) *Extension { return r.extensions[name] })
}

//nolint:gochecknoglobals
var defaultRegistry = NewRegistry()

// Register adds desc to the process-wide registry. It panics if desc is
// invalid or an extension with the same name is already registered.
func Register(desc Descriptor) {
	if err := defaultRegistry.Register(desc); err != nil {
		panic(err)
	}
}

// DefaultRegistry returns the process-wide registry filled by Register.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
