package classify

import (
	"strings"

	"github.com/BearBump/TrackGate/internal/models"
)

// Detect угадывает перевозчика по формату трек-номера. Используется только
// когда в записи carrier пустой или "AUTO".
//
// Правила применяются по порядку; 12 цифр выдают и UPS, и FedEx — ничья
// отдана UPS (задокументированная неоднозначность, не чиним молча).
func Detect(trackNumber string) models.Carrier {
	n := strings.TrimSpace(trackNumber)

	switch {
	case strings.HasPrefix(n, "1Z"):
		return models.CarrierUPS
	case allDigits(n) && len(n) == 9:
		return models.CarrierUPS
	case allDigits(n) && len(n) == 12:
		return models.CarrierUPS
	case allDigits(n) && len(n) == 15:
		return models.CarrierFedEx
	case allDigits(n) && len(n) == 10 && (strings.HasPrefix(n, "96") || strings.HasPrefix(n, "97")):
		return models.CarrierFedEx
	default:
		return models.CarrierUnknown
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
