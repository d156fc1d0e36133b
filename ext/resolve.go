package ext

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
)

// ResolvedExtension is an extension pinned to a single version.
type ResolvedExtension struct {
	Name       string                 `json:"name" yaml:"name"`
	Version    *semver.Version        `json:"version" yaml:"version"`
	Constraint Constraint             `json:"constraint" yaml:"constraint"`
	Exports    map[string]interface{} `json:"-" yaml:"-"`
}

// Resolved maps extension names to their selected versions.
type Resolved map[string]*ResolvedExtension

// Names returns the sorted names of the resolved extensions.
func (r Resolved) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver matches manifests against a registry.
type Resolver struct {
	registry      *Registry
	engineVersion *semver.Version
	logger        logrus.FieldLogger
}

// NewResolver returns a resolver for the given registry and engine version.
func NewResolver(registry *Registry, engineVersion string, logger logrus.FieldLogger) (*Resolver, error) {
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid engine version %q: %w", engineVersion, err)
	}
	return &Resolver{registry: registry, engineVersion: v, logger: logger.WithField("component", "resolver")}, nil
}

// Resolve selects, for each requirement of m, the highest registered version
// of the extension satisfying its constraint. Resolution is all-or-nothing:
// every failing requirement is reported and no partial result is returned.
func (r *Resolver) Resolve(m *Manifest) (Resolved, error) {
	if !m.Engine.Check(r.engineVersion) {
		return nil, &VersionConstraintError{
			Name:       EngineName,
			Constraint: m.Engine.String(),
			Available:  []string{r.engineVersion.String()},
		}
	}

	var (
		errs     *multierror.Error
		resolved = make(Resolved, len(m.Requirements))
	)
	for _, req := range m.Requirements {
		re, err := r.resolveOne(req)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		resolved[re.Name] = re
		r.logger.WithFields(logrus.Fields{
			"extension":  re.Name,
			"constraint": req.Constraint.String(),
			"version":    re.Version.String(),
		}).Debug("Resolved extension")
	}

	if errs != nil {
		if len(errs.Errors) == 1 {
			return nil, errs.Errors[0]
		}
		errs.ErrorFormat = listFormat
		return nil, errext.WithAbortReasonIfNone(
			errext.WithExitCodeIfNone(errs.ErrorOrNil(), exitcodes.ScriptDependencyError),
			errext.AbortedByDependency)
	}
	return resolved, nil
}

func (r *Resolver) resolveOne(req Requirement) (*ResolvedExtension, error) {
	e, ok := r.registry.Get(req.Name)
	if !ok {
		return nil, &UnknownExtensionError{Name: req.Name, Available: r.registry.Names()}
	}

	for _, v := range e.Versions {
		if req.Constraint.Check(v) {
			return &ResolvedExtension{Name: e.Name, Version: v, Constraint: req.Constraint, Exports: e.Exports}, nil
		}
	}

	return nil, &VersionConstraintError{
		Name:       e.Name,
		Constraint: req.Constraint.String(),
		Available:  e.VersionStrings(),
	}
}

func listFormat(errs []error) string {
	s := fmt.Sprintf("%d extension requirements could not be resolved:", len(errs))
	for _, err := range errs {
		s += "\n\t* " + err.Error()
	}
	return s
}
