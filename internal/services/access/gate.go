// Package access entscheidet, ob ein Aufrufer eine profil-bezogene
// Operation ausführen darf. Die Regel ist bewusst schmal: ein Aufrufer
// darf nur sein eigenes Profil lesen und verändern.
package access

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "access",
}

// ErrForbidden zeigt eine verweigerte Operation an. Die Handler bilden ihn
// auf HTTP 403 ab; er ist strikt von "Ressource nicht gefunden" getrennt.
var ErrForbidden = errors.New("caller may not access this profile")

// ActorContext identifiziert den Aufrufer einer Operation. Eine leere
// UserID bedeutet anonym; anonyme Aufrufer scheitern an jeder Prüfung.
type ActorContext struct {
	UserID string
}

// Gate prüft Besitz-Regeln für Profil-Operationen
type Gate struct{}

// NewGate erstellt ein Zugriffs-Gate
func NewGate() *Gate {
	return &Gate{}
}

// AuthorizeProfileAccess erlaubt die Operation nur, wenn der Aufrufer
// exakt der Eigentümer des Zielprofils ist.
func (g *Gate) AuthorizeProfileAccess(actor ActorContext, ownerUserID string) error {
	if actor.UserID == "" {
		log.WithFields(logFields).Debug("Anonymous caller denied")
		return ErrForbidden
	}
	if actor.UserID != ownerUserID {
		log.WithFields(logFields).Warnf("Caller %s denied access to profile %s", actor.UserID, ownerUserID)
		return ErrForbidden
	}
	return nil
}
