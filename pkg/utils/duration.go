package utils

import "fmt"

// FormatHoursMinutes formats seconds as "X horas e Y minutos"
func FormatHoursMinutes(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%d horas e %d minutos", total/3600, (total%3600)/60)
}
