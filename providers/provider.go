package providers

import "time"

// Email ist eine rohe, ungelesene Alert-Mail, wie sie ein Provider liefert.
// Der Provider führt seine eigene "schon gesehen"-Buchhaltung (ungelesen
// markieren bzw. Cursor); was er liefert, gilt als neu.
type Email struct {
	ID            string
	Body          string // HTML-Body
	Label         string
	ReceivedDate  time.Time
	HarvestedDate time.Time
}

// MailProvider ist das Interface, das jedes Mail-Retrieval-Backend
// (z.B. Gmail-API, IMAP) implementieren muss.
type MailProvider interface {
	// GetEmails liefert alle ungelesenen Alert-Mails und markiert sie als gelesen.
	GetEmails() ([]*Email, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "gmail").
	Name() string
}
