// Package db carries the relational schema for the job store.
package db

import _ "embed"

// Schema creates the jobs and assets tables. Statements are idempotent.
//
//go:embed schema.sql
var Schema string
