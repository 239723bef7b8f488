package dtls

import "fmt"

type alertLevel uint8

const (
	alertLevelWarning alertLevel = 1
	alertLevelFatal   alertLevel = 2
)

type alertDescription uint8

const (
	alertCloseNotify          alertDescription = 0
	alertUnexpectedMessage    alertDescription = 10
	alertBadRecordMAC         alertDescription = 20
	alertHandshakeFailure     alertDescription = 40
	alertBadCertificate       alertDescription = 42
	alertInternalError        alertDescription = 80
)

type alert struct {
	level       alertLevel
	description alertDescription
}

func (a alert) marshal() []byte {
	return []byte{byte(a.level), byte(a.description)}
}

func (a *alert) unmarshal(buf []byte) error {
	if len(buf) < 2 {
		return errRecordTooShort
	}
	a.level = alertLevel(buf[0])
	a.description = alertDescription(buf[1])
	return nil
}

func (a alert) Error() string {
	return fmt.Sprintf("dtls: alert level=%d description=%d", a.level, a.description)
}
