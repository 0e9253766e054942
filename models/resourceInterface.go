package models

func (b Batch) GetBusinessId() string {
	return b.BusinessId
}

func (b BatchAllocation) GetBusinessId() string {
	return b.BusinessId
}

func (b BatchRequirement) GetBusinessId() string {
	return b.BusinessId
}

func (b Bom) GetBusinessId() string {
	return b.BusinessId
}

func (b BomComponent) GetBusinessId() string {
	return b.BusinessId
}

func (c CarType) GetBusinessId() string {
	return c.BusinessId
}

func (h History) GetBusinessId() string {
	return h.BusinessId
}

func (i InventoryTransaction) GetBusinessId() string {
	return i.BusinessId
}

func (i Item) GetBusinessId() string {
	return i.BusinessId
}

func (a ProductionEventRecord) GetBusinessId() string {
	return a.BusinessId
}

func (r RawInventory) GetBusinessId() string {
	return r.BusinessId
}

func (v VinPlan) GetBusinessId() string {
	return v.BusinessId
}

func (z Zone) GetBusinessId() string {
	return z.BusinessId
}

func (z ZoneBomMapping) GetBusinessId() string {
	return z.BusinessId
}
