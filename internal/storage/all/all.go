// Package all links every destination backend into the binary.
package all

import (
	_ "jsonl2sql/internal/storage/mssql"
	_ "jsonl2sql/internal/storage/mysql"
	_ "jsonl2sql/internal/storage/postgres"
	_ "jsonl2sql/internal/storage/sqlite"
)
