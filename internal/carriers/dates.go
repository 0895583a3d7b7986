package carriers

import "github.com/BearBump/TrackGate/internal/models"

// FormatDateTime превращает сырые поля перевозчика YYYYMMDD (+ HHMMSS)
// в "YYYY-MM-DD" или "YYYY-MM-DD HH:MM:SS".
//
// Дата не ровно 8 символов -> "Not available". Время не ровно 6 символов
// опускается целиком, нулями не добиваем.
func FormatDateTime(date, tm string) string {
	if len(date) != 8 {
		return models.NotAvailable
	}

	out := date[0:4] + "-" + date[4:6] + "-" + date[6:8]
	if len(tm) != 6 {
		return out
	}
	return out + " " + tm[0:2] + ":" + tm[2:4] + ":" + tm[4:6]
}
