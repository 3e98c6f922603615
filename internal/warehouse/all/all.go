// Package all registers every warehouse backend. Import for side effects
// from binaries that select a backend by config:
//
//	import _ "eduetl/internal/warehouse/all"
package all

import (
	_ "eduetl/internal/warehouse/mssql"
	_ "eduetl/internal/warehouse/postgres"
	_ "eduetl/internal/warehouse/sqlite"
)
