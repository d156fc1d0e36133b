package execution

import (
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/k6x/ext"
	"github.com/liuxd6825/k6x/js/modules"
	"github.com/liuxd6825/k6x/loader"
)

// Plan holds what is known about a script before any of it is executed.
type Plan struct {
	Manifest  *ext.Manifest
	Resolved  ext.Resolved
	Namespace *modules.Namespace
}

// Prepare parses the directives and imports of the script, resolves the
// extensions it requires against the registry and checks that every import
// can be served by the resulting namespace. Any failure is returned before a
// single VU exists. Once the manifest is parsed, the returned plan carries it
// even when resolution fails, so that callers can still report it.
func Prepare(
	registry *ext.Registry, engineVersion string, logger logrus.FieldLogger, sourceID string, src []byte,
) (*Plan, error) {
	manifest, err := loader.ParseManifest(sourceID, src)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Manifest: manifest}

	resolver, err := ext.NewResolver(registry, engineVersion, logger)
	if err != nil {
		return plan, err
	}
	if plan.Resolved, err = resolver.Resolve(manifest); err != nil {
		return plan, err
	}

	plan.Namespace = modules.BuildNamespace(plan.Resolved)
	if err := plan.Namespace.Verify(manifest.Imports); err != nil {
		return plan, err
	}

	return plan, nil
}
