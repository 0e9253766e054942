package floorsync

import "encoding/json"

// FloorEvent is the MES wire format for one unit passing a station. The
// station field carries the MES's own code; the alias map on the connection
// translates it to a zone code when the two disagree.
type FloorEvent struct {
	MessageId   string `json:"message_id"`
	PlantCode   string `json:"plant_code"`
	LineCode    string `json:"line_code"`
	BusinessId  string `json:"business_id"`
	Vin         string `json:"vin"`
	Station     string `json:"station"`
	ZoneCode    string `json:"zone_code"`
	CarCode     string `json:"car_code"`
	CompletedBy string `json:"completed_by"`
	CompletedAt string `json:"completed_at"`
}

// StationAliases maps MES station codes to catalog zone codes.
type StationAliases map[string]string

func DecodeAliases(raw []byte) StationAliases {
	if len(raw) == 0 {
		return StationAliases{}
	}
	var aliases StationAliases
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return StationAliases{}
	}
	return aliases
}

func EncodeAliases(aliases StationAliases) []byte {
	if aliases == nil {
		aliases = StationAliases{}
	}
	b, _ := json.Marshal(aliases)
	return b
}

// Resolve returns the zone code for an event: explicit zone_code wins, then
// the alias for the station, then the station itself.
func (a StationAliases) Resolve(event FloorEvent) string {
	if event.ZoneCode != "" {
		return event.ZoneCode
	}
	if mapped, ok := a[event.Station]; ok && mapped != "" {
		return mapped
	}
	return event.Station
}

type ConnectRequest struct {
	PlantCode string         `json:"plantCode"`
	LineCode  string         `json:"lineCode"`
	Aliases   StationAliases `json:"aliases"`
}

type UpdateSettingsRequest struct {
	Aliases StationAliases `json:"aliases"`
}

type StatusResponse struct {
	Connection     ConnectionResponse `json:"connection"`
	LastEventAt    *string            `json:"lastEventAt"`
	LastDeliveryAt *string            `json:"lastDeliveryAt"`
	Aliases        StationAliases     `json:"aliases"`
	Pending        int64              `json:"pending"`
	Failed         int64              `json:"failed"`
	Dead           int64              `json:"dead"`
}

type ConnectionResponse struct {
	Status    string `json:"status"`
	PlantCode string `json:"plantCode"`
	LineCode  string `json:"lineCode"`
}

type DeliveryListResponse struct {
	Items []DeliveryResponse `json:"items"`
}

type DeliveryResponse struct {
	ID          uint    `json:"id"`
	MessageId   string  `json:"messageId"`
	Vin         string  `json:"vin"`
	ZoneCode    string  `json:"zoneCode"`
	CarCode     string  `json:"carCode"`
	Status      string  `json:"status"`
	Attempts    int     `json:"attempts"`
	LastError   *string `json:"lastError"`
	EventTime   *string `json:"eventTime"`
	DeliveredAt *string `json:"deliveredAt"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
