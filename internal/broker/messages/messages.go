package messages

import "time"

// RecordUpdated приходит из внешней системы заказов, когда заказу
// назначили (или переназначили) трек-номер. По нему мы обновляем
// хранилище записей и сбрасываем кэш результата.
type RecordUpdated struct {
	Code           string `json:"code"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier,omitempty"`

	// Прежний трек-номер, если произошла замена — его кэш тоже надо сбросить.
	PreviousTrackingNumber string `json:"previous_tracking_number,omitempty"`
}

// ResolutionCompleted публикуется после каждого успешного похода к
// перевозчику (sentinel-результаты не публикуются). Best-effort: провал
// публикации не валит резолюцию.
type ResolutionCompleted struct {
	Code       string    `json:"code"`
	Carrier    string    `json:"carrier"`
	Status     string    `json:"status"`
	ResolvedAt time.Time `json:"resolved_at"`
}
