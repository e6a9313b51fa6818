// Package all links every registry backend into the binary. Import it for
// its side effects from command entry points.
package all

import (
	_ "github.com/Redliana/critical-minerals-data-tools/internal/registry/mssql"
	_ "github.com/Redliana/critical-minerals-data-tools/internal/registry/postgres"
	_ "github.com/Redliana/critical-minerals-data-tools/internal/registry/sqlite"
)
