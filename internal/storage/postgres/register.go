package postgres

import "jsonl2sql/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", Dialect{}, New)
}
