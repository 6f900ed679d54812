package imapmail

import (
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

// labelRgx zieht das Label aus dem Betreff, z.B. `"nhmuk" - neue Ergebnisse`.
var labelRgx = regexp.MustCompile(`^"([^"]+)"`)

// Netzwerk-Timeouts: Verbindungsaufbau und einzelne IMAP-Kommandos dürfen
// nie unbegrenzt hängen.
const (
	dialTimeout    = 30 * time.Second
	commandTimeout = 60 * time.Second
)

func newDialer() *net.Dialer {
	return &net.Dialer{Timeout: dialTimeout}
}

// Retriever holt ungelesene Alert-Mails per IMAP. Der Body-Fetch setzt das
// \Seen-Flag (kein PEEK), damit übernimmt der Server die Buchhaltung.
type Retriever struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewRetriever erstellt einen neuen IMAP-Retriever.
func NewRetriever(cfg *config.Config, logger *zap.Logger) *Retriever {
	return &Retriever{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (r *Retriever) Name() string {
	return "imap"
}

// GetEmails verbindet sich, sucht ungelesene Mails des Alert-Absenders
// und liefert sie mit HTML-Body. Die Verbindung lebt nur für einen Lauf.
func (r *Retriever) GetEmails() ([]*providers.Email, error) {
	c, err := client.DialWithDialerTLS(newDialer(), r.Config.IMAPHost+":993", nil)
	if err != nil {
		return nil, fmt.Errorf("imap-verbindung fehlgeschlagen: %w", err)
	}
	c.Timeout = commandTimeout
	defer c.Logout()

	if err := c.Login(r.Config.IMAPUser, r.Config.IMAPPassword); err != nil {
		return nil, fmt.Errorf("imap-login fehlgeschlagen: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("INBOX nicht wählbar: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("From", r.Config.AlertSender)

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap-suche fehlgeschlagen: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var emails []*providers.Email
	for msg := range messages {
		email, err := r.parseMessage(msg, section)
		if err != nil {
			r.Logger.Warn("Konnte IMAP-Nachricht nicht lesen", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap-fetch fehlgeschlagen: %w", err)
	}
	return emails, nil
}

// parseMessage baut aus einer IMAP-Nachricht einen Email-Datensatz.
func (r *Retriever) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*providers.Email, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("kein body in fetch-antwort")
	}

	html, err := htmlPart(body)
	if err != nil {
		return nil, err
	}

	email := &providers.Email{
		ID:            fmt.Sprintf("%d", msg.Uid),
		Body:          html,
		HarvestedDate: time.Now(),
	}
	if msg.Envelope != nil {
		email.ReceivedDate = msg.Envelope.Date
		email.Label = subjectLabel(msg.Envelope.Subject)
	}
	return email, nil
}

// htmlPart durchläuft die MIME-Teile und liefert den ersten text/html-Part.
func htmlPart(body io.Reader) (string, error) {
	mr, err := gomail.CreateReader(body)
	if err != nil {
		return "", err
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if h, ok := p.Header.(*gomail.InlineHeader); ok {
			ct, _, err := h.ContentType()
			if err == nil && strings.EqualFold(ct, "text/html") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", err
				}
				return string(b), nil
			}
		}
	}
	return "", fmt.Errorf("kein text/html-part gefunden")
}

// subjectLabel liest das in Anführungszeichen vorangestellte Label, sonst "".
func subjectLabel(subject string) string {
	if m := labelRgx.FindStringSubmatch(subject); len(m) > 1 {
		return m[1]
	}
	return ""
}
