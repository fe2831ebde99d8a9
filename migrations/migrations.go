// Package migrations carries the schema applied at startup
package migrations

import _ "embed"

//go:embed 001_init.sql
var Init string
