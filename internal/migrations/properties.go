package migrations

import (
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"
)

// InventoryStatus renames inv-status to inventory-status on pservers.
func InventoryStatus() *migration.Unit {
	return migration.PropertyRename{
		Name:      "MigrateInventoryStatus",
		OldField:  "inv-status",
		NewField:  "inventory-status",
		NodeTypes: []string{"pserver"},
		Indexed:   true,
		Priority:  20,
	}.Unit()
}

// InMaint sets in-maint to false wherever pservers and pnfs lack it.
func InMaint() *migration.Unit {
	return migration.ValueBackfill{
		Name: "MigrateInMaint",
		Values: map[string]graph.Properties{
			"pserver": {"in-maint": false},
			"pnf":     {"in-maint": false},
		},
		Priority: 30,
	}.Unit()
}
