package models

import (
	"fmt"

	"gorm.io/gorm"
)

func (i *Item) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, i.ID, i, "Created Item"); err != nil {
		return err
	}
	if err := i.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (i *Item) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, i.ID, i, "Updated Item"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*i); err != nil {
		return err
	}
	return nil
}

func (i *Item) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, i.ID, i, "Deleted Item"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*i); err != nil {
		return err
	}
	return nil
}

func (b *Bom) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, b.ID, b, "Created BOM"); err != nil {
		return err
	}
	if err := b.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (b *Bom) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, b.ID, b, "Updated BOM"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*b); err != nil {
		return err
	}
	return nil
}

func (b *Bom) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, b.ID, b, "Deleted BOM"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*b); err != nil {
		return err
	}
	return nil
}

func (c *CarType) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, c.ID, c, "Created Car Type"); err != nil {
		return err
	}
	if err := c.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (c *CarType) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, c.ID, c, "Updated Car Type"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*c); err != nil {
		return err
	}
	return nil
}

func (c *CarType) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, c.ID, c, "Deleted Car Type"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*c); err != nil {
		return err
	}
	return nil
}

func (z *Zone) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, z.ID, z, "Created Zone"); err != nil {
		return err
	}
	if err := z.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (z *Zone) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, z.ID, z, "Updated Zone"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*z); err != nil {
		return err
	}
	return nil
}

func (z *Zone) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, z.ID, z, "Deleted Zone"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*z); err != nil {
		return err
	}
	return nil
}

func (m *ZoneBomMapping) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, m.ID, m, "Created Zone BOM Mapping"); err != nil {
		return err
	}
	if err := m.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (m *ZoneBomMapping) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, m.ID, m, "Updated Zone BOM Mapping"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*m); err != nil {
		return err
	}
	return nil
}

func (m *ZoneBomMapping) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, m.ID, m, "Deleted Zone BOM Mapping"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*m); err != nil {
		return err
	}
	return nil
}

func (b *Batch) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, b.ID, b, "Created Batch"); err != nil {
		return err
	}
	if err := b.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (b *Batch) BeforeUpdate(tx *gorm.DB) (err error) {
	description := "Updated Batch."
	if tx.Statement.Changed("Status") {
		newStatus := tx.Statement.Dest.(map[string]interface{})["Status"].(BatchStatus)
		description += fmt.Sprintf("Status changed from %s to %s.", b.Status, newStatus)
	}
	if err := SaveHistoryUpdate(tx, b.ID, b, description); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*b); err != nil {
		return err
	}
	return nil
}

func (b *Batch) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, b.ID, b, "Deleted Batch"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*b); err != nil {
		return err
	}
	return nil
}
