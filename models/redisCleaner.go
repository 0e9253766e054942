package models

import (
	"bitbucket.org/mmdatafocus/factory_backend/utils"
)

type RedisCleaner interface {
	RemoveInstanceRedis() error // remove one
	RemoveAllRedis() error      // remove list if exists
}

// remove both item & list
func RemoveRedisBoth[T RedisCleaner](obj T) error {
	if err := obj.RemoveInstanceRedis(); err != nil {
		return err
	}
	if err := obj.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (obj Item) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Item](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Item) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllItem](obj.BusinessId)
}

func (obj Bom) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Bom](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Bom) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllBom](obj.BusinessId)
}

func (obj CarType) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[CarType](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj CarType) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllCarType](obj.BusinessId)
}

func (obj Zone) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Zone](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Zone) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllZone](obj.BusinessId)
}

func (obj ZoneBomMapping) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[ZoneBomMapping](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj ZoneBomMapping) RemoveAllRedis() error {
	return nil
}

func (obj Batch) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Batch](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Batch) RemoveAllRedis() error {
	return utils.RemoveRedisList[AllBatch](obj.BusinessId)
}
