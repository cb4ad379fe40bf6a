// Package appfs embeds the files the binaries need at runtime: SQL migrations,
// message catalogs, email and page templates and the common passwords list.
package appfs

import "embed"

//go:embed migrations/*.sql locales/*.toml all:assets
var FS embed.FS
