package models

import "strings"

// Carrier идентификаторы. Парсим строковые коды из хранилища один раз,
// на границе, дальше работаем только с типом.
type Carrier string

const (
	CarrierUPS     Carrier = "UPS"
	CarrierFedEx   Carrier = "FEDEX"
	CarrierAuto    Carrier = "AUTO"
	CarrierUnknown Carrier = "UNKNOWN"
)

// ParseCarrier maps a stored carrier code to a Carrier. Empty input means
// AUTO (the record predates the carrier column).
func ParseCarrier(s string) Carrier {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UPS":
		return CarrierUPS
	case "FEDEX":
		return CarrierFedEx
	case "", "AUTO":
		return CarrierAuto
	default:
		return CarrierUnknown
	}
}

// Sentinel values: every TrackingResult field is always populated, so
// consumers never null-check.
const (
	StatusUnknown      = "Unknown"
	StatusInProduction = "Order in Production"
	StatusInvalidCode  = "Invalid tracking code"

	NotAvailable    = "Not available"
	NotAvailableYet = "Not available yet"
)

// NotShippedSentinel — значение tracking_number, означающее "заказ ещё в
// производстве" (сравнивается без учёта регистра).
const NotShippedSentinel = "NA"

type TrackingResult struct {
	Status            string `json:"status"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	CurrentLocation   string `json:"currentLocation,omitempty"`
	LatestUpdate      string `json:"latestUpdate,omitempty"`
}

// InvalidCodeResult — код не найден в хранилище. Это успешный ответ,
// не ошибка.
func InvalidCodeResult() TrackingResult {
	return TrackingResult{
		Status:            StatusInvalidCode,
		EstimatedDelivery: NotAvailable,
	}
}

// InProductionResult — трек-номер ещё не назначен (sentinel "NA").
func InProductionResult() TrackingResult {
	return TrackingResult{
		Status:            StatusInProduction,
		EstimatedDelivery: NotAvailableYet,
	}
}

// OrderRecord — запись из хранилища: код клиента -> трек-номер + перевозчик.
type OrderRecord struct {
	Code           string
	TrackingNumber string
	CarrierCode    string
}

// NotShipped reports whether the record's tracking number is still the
// "order in production" sentinel.
func (r OrderRecord) NotShipped() bool {
	return r.TrackingNumber == "" || strings.EqualFold(r.TrackingNumber, NotShippedSentinel)
}
