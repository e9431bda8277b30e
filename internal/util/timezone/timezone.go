package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Globale Variable für die aktuelle Zeitzone
var currentLocation *time.Location

// Initialize setzt die Zeitzone basierend auf der konfigurierten Zone bzw.
// der TZ-Umgebungsvariable. Sollte beim Programmstart aufgerufen werden.
func Initialize(name string) {
	tzName := name
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		currentLocation = time.UTC
		return
	}

	log.Infof("Timezone initialized to %s", tzName)
	currentLocation = loc
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	if currentLocation == nil {
		Initialize("")
	}
	return time.Now().In(currentLocation)
}

// Format formatiert ein time.Time-Objekt mit der konfigurierten Zeitzone
func Format(t time.Time, layout string) string {
	if currentLocation == nil {
		Initialize("")
	}
	return t.In(currentLocation).Format(layout)
}

// ISO8601 formatiert ein time.Time-Objekt im RFC3339-Format mit der konfigurierten Zeitzone
func ISO8601(t time.Time) string {
	return Format(t, time.RFC3339)
}
