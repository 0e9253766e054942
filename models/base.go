package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishToProduction implements the transactional outbox:
// it writes the event record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func PublishToProduction(ctx context.Context, db *gorm.DB, businessId string, transactionDateTime time.Time, refId int, refType ProductionReferenceType, obj interface{}, oldObj interface{}, msgAction PubSubMessageAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if msgAction == PubSubMessageActionCreate || msgAction == PubSubMessageActionUpdate {
		// VIN plans can run to hundreds of rows, keep them off the payload
		objInByte, err = ToJSONWithoutField(obj, "VinPlans")
		if err != nil {
			return err
		}
	}
	if msgAction == PubSubMessageActionUpdate || msgAction == PubSubMessageActionDelete {
		oldObjInByte, err = ToJSONWithoutField(oldObj, "VinPlans")
		if err != nil {
			return err
		}
	}

	record := ProductionEventRecord{
		BusinessId:          businessId,
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              msgAction,
		NewObj:              objInByte,
		OldObj:              oldObjInByte,
		IsProcessed:         false,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	err = db.Create(&record).Error
	if err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ToJSONWithoutField converts an object to JSON after temporarily removing a specified field
func ToJSONWithoutField(obj interface{}, fieldName string) ([]byte, error) {
	// Get the value of the object
	val := reflect.ValueOf(obj)

	// If the value is an interface, get the concrete value it holds
	if val.Kind() == reflect.Interface {
		val = val.Elem()
	}

	// If the value is not a pointer, create a pointer to it
	if val.Kind() != reflect.Ptr {
		valPtr := reflect.New(val.Type())
		valPtr.Elem().Set(val)
		val = valPtr
	}

	// Dereference the pointer
	val = val.Elem()

	// Ensure the value is a struct
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct, got %v", val.Kind())
	}

	// Find the field by name
	field := val.FieldByName(fieldName)
	var err error
	var jsonData []byte
	if field.IsValid() {
		// Check if the field is a slice
		if field.Kind() == reflect.Slice {
			// Iterate over the slice elements
			for i := 0; i < field.Len(); i++ {
				elem := field.Index(i)
				if elem.Kind() == reflect.Struct {
					elemPtr := reflect.New(elem.Type())
					elemPtr.Elem().Set(elem)
					field.Index(i).Set(elemPtr.Elem())
				}
			}
		}

		// Store the original value of the field
		originalValue := reflect.New(field.Type()).Elem()
		originalValue.Set(field)

		// Clear the field value
		field.Set(reflect.Zero(field.Type()))

		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())

		// Restore the original value
		field.Set(originalValue)
	} else {
		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())
	}
	if err != nil {
		return nil, err
	}
	return jsonData, nil
}

// ValidateProductionReference checks that the row an event points at still exists.
// Async workers call this before acting on a claimed outbox record.
func ValidateProductionReference(ctx context.Context, businessId string, referenceId int, referenceType ProductionReferenceType) error {
	tableNames := map[ProductionReferenceType]string{
		ProductionReferenceTypeZoneCompletion:  "vin_plans",
		ProductionReferenceTypeBatchActivated:  "batches",
		ProductionReferenceTypeBatchCompleted:  "batches",
		ProductionReferenceTypeAllocationMoved: "batch_allocations",

		// bulk references have no single backing row
		ProductionReferenceTypeStockZeroed: "",
		ProductionReferenceTypePackingList: "",
	}
	tableName, ok := tableNames[referenceType]
	if !ok {
		return errors.New("invalid reference type")
	}

	if tableName == "" {
		return nil
	}

	db := config.GetDB()
	var count int64
	dbCtx := db.WithContext(ctx).Where("business_id = ? AND id =?", businessId, referenceId)
	if err := dbCtx.Table(tableName).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("production reference does not exist")
	}

	return nil
}

func ParseDateString(dateString string, timezone string) (time.Time, error) {

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", dateString)
	if err != nil {
		fmt.Println("Error parsing date:", err)
		return time.Time{}, err
	}

	if timezone == "" {
		timezone = "Asia/Yangon"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return time.Time{}, err
	}

	// Convert the local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		localTime.Hour(), localTime.Minute(), localTime.Second(), localTime.Nanosecond(),
		location,
	)

	// Convert the time to UTC
	return localTimeInZone.UTC(), nil
}
