package archive

// Migrator upgrades a record from fromVersion to CurrentSchemaVersion. It
// decodes raw via UnarchiveUntrusted (the untrusted path of spec.md §4.4,
// since schema-upgrade input wasn't necessarily written by the running
// binary's own current Marshal), builds the next-version field list, and
// returns it for re-marshaling by the caller's batch.
type Migrator func(raw []byte) ([]FieldTLV, error)

// migrators is keyed by (typeTag, fromVersion); registered by Register.
var migrators = map[migratorKey]Migrator{}

type migratorKey struct {
	typ         TypeTag
	fromVersion uint8
}

// Register adds a migrator for (typ, fromVersion). Call from an init()
// in the package that defines the older shape, mirroring how the teacher
// registers scheduler/worker handlers at startup rather than via a
// global constructor.
func Register(typ TypeTag, fromVersion uint8, m Migrator) {
	migrators[migratorKey{typ, fromVersion}] = m
}

// Lookup returns the registered migrator for (typ, fromVersion), if any.
func Lookup(typ TypeTag, fromVersion uint8) (Migrator, bool) {
	m, ok := migrators[migratorKey{typ, fromVersion}]
	return m, ok
}

// NeedsMigration reports whether raw's schema version is behind current.
func NeedsMigration(raw []byte) (typ TypeTag, from uint8, needed bool) {
	if len(raw) < envelopeHeaderLen {
		return 0, 0, false
	}
	v := raw[1]
	return TypeTag(raw[0]), v, v < CurrentSchemaVersion
}
