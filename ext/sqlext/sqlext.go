// Package sqlext registers the built-in "sql" extension: the root export opens
// driver handles, and every bundled database/sql driver is exported under
// "driver/<name>". Importing the package adds the extension to the default
// registry.
package sqlext

import (
	_ "github.com/proullon/ramsql/driver" // registers the "ramsql" database/sql driver

	"github.com/liuxd6825/k6x/driver/sqldb"
	"github.com/liuxd6825/k6x/ext"
	"github.com/liuxd6825/k6x/js/modules/k6/x/sql"
)

// Name is the name scripts require the extension by, as in "k6/x/sql".
const Name = "sql"

// Version is the version of the extension.
const Version = "1.0.0"

// Descriptor returns the descriptor of the sql extension.
func Descriptor() ext.Descriptor {
	return ext.Descriptor{
		Name:     Name,
		Versions: []string{Version},
		Exports: map[string]interface{}{
			"":              sql.New(),
			"driver/ramsql": sqldb.New("ramsql"),
		},
	}
}

func init() {
	ext.Register(Descriptor())
}
