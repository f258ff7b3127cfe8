// Package migrations holds the concrete migration units and the registry
// the migrate command runs.
package migrations

import (
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"
)

type Options struct {
	// ASDCInput is the tab separated VNT input of the ASDC unit.
	ASDCInput string
}

// Registry returns every known unit. The rename and backfill templates are
// listed so discovery can skip them.
func Registry(opts Options) *migration.Registry {
	return migration.NewRegistry(
		migration.Entry{Name: "PropertyMigrator", Template: true},
		migration.Entry{Name: "ValueMigrator", Template: true},
		migration.Entry{
			Name:    EdgeRetagName,
			Enabled: true,
			New:     func() (migration.Migrator, error) { return NewEdgeRetag(), nil },
		},
		migration.Entry{
			Name:    "MigrateInventoryStatus",
			Enabled: true,
			New:     func() (migration.Migrator, error) { return InventoryStatus(), nil },
		},
		migration.Entry{
			Name:    "MigrateInMaint",
			Enabled: true,
			New:     func() (migration.Migrator, error) { return InMaint(), nil },
		},
		migration.Entry{
			Name:    SDWANName,
			Enabled: true,
			New:     func() (migration.Migrator, error) { return SDWANSpeedChange(), nil },
		},
		migration.Entry{
			Name:    ASDCName,
			Enabled: false,
			New: func() (migration.Migrator, error) {
				return NewASDCToConfiguration(opts.ASDCInput), nil
			},
		},
	)
}
