package models

import (
	"log"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Item{}, &Bom{}, &BomComponent{},
		&CarType{}, &Zone{}, &ZoneBomMapping{},
		&Batch{}, &VinPlan{}, &BatchRequirement{},
		&RawInventory{}, &BatchAllocation{},
		&InventoryTransaction{},
		&History{},
		&ProductionEventRecord{},
		&IdempotencyKey{},
		&FloorConnection{}, &FloorDelivery{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
