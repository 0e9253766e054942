package models

import "time"

const (
	FloorProviderMES = "mes"
)

const (
	FloorConnectionConnected    = "connected"
	FloorConnectionDisconnected = "disconnected"
	FloorConnectionError        = "error"
)

const (
	FloorDeliveryPending   = "PENDING"
	FloorDeliveryDelivered = "DELIVERED"
	FloorDeliveryFailed    = "FAILED"
	FloorDeliveryDead      = "DEAD"
)

// FloorConnection binds a tenant to its plant MES feed. SettingsJSON holds
// the station alias map, so zone codes on the wire can be renamed without
// touching the catalog.
type FloorConnection struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	BusinessId     string     `gorm:"index;not null" json:"business_id"`
	Provider       string     `gorm:"index;size:50;not null" json:"provider"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	PlantCode      string     `gorm:"size:100" json:"plant_code"`
	LineCode       string     `gorm:"size:100" json:"line_code"`
	SettingsJSON   []byte     `gorm:"type:json" json:"settings"`
	LastEventAt    *time.Time `json:"last_event_at"`
	LastDeliveryAt *time.Time `json:"last_delivery_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// FloorDelivery is one floor message on its way into the backend. The
// (business_id, message_id) unique index is the dedupe: a redelivered
// message hits the index instead of posting twice.
type FloorDelivery struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	BusinessId  string     `gorm:"uniqueIndex:idx_floor_delivery_msg,priority:1;not null" json:"business_id"`
	MessageId   string     `gorm:"uniqueIndex:idx_floor_delivery_msg,priority:2;size:128;not null" json:"message_id"`
	Vin         string     `gorm:"size:100;index" json:"vin"`
	ZoneCode    string     `gorm:"size:100" json:"zone_code"`
	CarCode     string     `gorm:"size:100" json:"car_code"`
	CompletedBy string     `gorm:"size:100" json:"completed_by"`
	EventTime   *time.Time `json:"event_time"`
	Status      string     `gorm:"size:20;index;not null" json:"status"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   *string    `gorm:"type:text" json:"last_error"`
	PayloadJSON []byte     `gorm:"type:json" json:"payload"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
