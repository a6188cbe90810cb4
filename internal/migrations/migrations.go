package migrations

import "embed"

// Files contains the ledger schema migrations, named NNN_description.sql and
// applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
