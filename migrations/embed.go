// Package migrations holds the SQL schema applied by "medcenter-server migrate".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
