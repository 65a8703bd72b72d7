// Package db provides the embedded remote store schema.
package db

import _ "embed"

// Schema contains the DDL statements for all remote store tables.
//
//go:embed migrations/001_schema.sql
var Schema string
