package models

// TableRef identifies one table to copy during initialization.
type TableRef struct {
	Schema string `db:"nspname" json:"schema"`
	Name   string `db:"relname" json:"name"`
}

// String returns the unquoted schema-qualified name, for logging only. SQL
// built from a TableRef must go through identifier sanitization instead.
func (t TableRef) String() string {
	return t.Schema + "." + t.Name
}
