package gmailapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/NaturalHistoryMuseum/Pipe/config"
	"github.com/NaturalHistoryMuseum/Pipe/providers"
)

const user = "me"

// requestTimeout begrenzt jeden einzelnen Gmail-API-Aufruf.
const requestTimeout = 30 * time.Second

// apiHTTPClient baut den OAuth2-HTTP-Client mit gesetztem Request-Timeout.
func apiHTTPClient(ctx context.Context, oauthCfg *oauth2.Config, tok *oauth2.Token) *http.Client {
	c := oauthCfg.Client(ctx, tok)
	c.Timeout = requestTimeout
	return c
}

// Retriever holt ungelesene Alert-Mails über die Gmail-API und markiert
// sie nach dem Abruf als gelesen.
type Retriever struct {
	Config  *config.Config
	Logger  *zap.Logger
	service *gmail.Service
}

// NewRetriever baut den Gmail-Service aus Client-Secret und gecachtem
// OAuth2-Token auf. Ohne gültiges Token gibt es keinen interaktiven
// Flow; der Fehler geht an den Aufrufer.
func NewRetriever(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Retriever, error) {
	b, err := os.ReadFile(cfg.GmailCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("client-secret nicht lesbar: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("client-secret nicht parsebar: %w", err)
	}
	tok, err := tokenFromFile(cfg.GmailTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth-token nicht lesbar: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(apiHTTPClient(ctx, oauthCfg, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail-service konnte nicht erstellt werden: %w", err)
	}
	return &Retriever{Config: cfg, Logger: logger, service: svc}, nil
}

// Name gibt den Namen des Providers zurück.
func (r *Retriever) Name() string {
	return "gmail"
}

// GetEmails liefert alle ungelesenen Alert-Mails und markiert sie als gelesen.
func (r *Retriever) GetEmails() ([]*providers.Email, error) {
	ids, err := r.listUnreadIDs()
	if err != nil {
		return nil, err
	}

	var emails []*providers.Email
	var fetched []string
	for _, id := range ids {
		email, err := r.getOneEmail(id)
		if err != nil {
			r.Logger.Warn("Konnte Mail nicht abrufen", zap.String("email_id", id), zap.Error(err))
			continue
		}
		emails = append(emails, email)
		fetched = append(fetched, id)
	}

	if len(fetched) > 0 {
		if err := r.markRead(fetched); err != nil {
			r.Logger.Warn("Konnte Mails nicht als gelesen markieren", zap.Error(err))
		}
	}
	return emails, nil
}

// listUnreadIDs holt die IDs aller ungelesenen Mails des Alert-Absenders.
func (r *Retriever) listUnreadIDs() ([]string, error) {
	query := fmt.Sprintf("is:unread from:%s", r.Config.AlertSender)
	var ids []string
	pageToken := ""
	for {
		call := r.service.Users.Messages.List(user).Q(query)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail-liste fehlgeschlagen: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	r.Logger.Debug("Ungelesene Alert-Mails gefunden", zap.Int("count", len(ids)))
	return ids, nil
}

// getOneEmail holt eine Mail vollständig und extrahiert Body, Label und Datum.
func (r *Retriever) getOneEmail(id string) (*providers.Email, error) {
	msg, err := r.service.Users.Messages.Get(user, id).Format("full").Do()
	if err != nil {
		return nil, err
	}

	email := &providers.Email{
		ID:            id,
		HarvestedDate: time.Now(),
		ReceivedDate:  time.UnixMilli(msg.InternalDate),
		Label:         userLabel(msg.LabelIds),
	}
	if msg.Payload != nil {
		email.Body = htmlBody(msg.Payload)
	}
	return email, nil
}

// userLabel liefert das erste Nutzer-Label der Mail ("Label_..."), sonst "".
func userLabel(labelIDs []string) string {
	for _, l := range labelIDs {
		if strings.HasPrefix(l, "Label") {
			return l
		}
	}
	return ""
}

// htmlBody liefert den dekodierten text/html-Part der Mail. Alerts ohne
// Multipart-Struktur tragen den HTML-Body direkt im Payload.
func htmlBody(payload *gmail.MessagePart) string {
	if body := findHTMLPart(payload); body != "" {
		return body
	}
	if len(payload.Parts) == 0 && payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}
	return ""
}

// findHTMLPart sucht rekursiv den ersten text/html-Part.
func findHTMLPart(payload *gmail.MessagePart) string {
	if payload.MimeType == "text/html" && payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		if body := findHTMLPart(part); body != "" {
			return body
		}
	}
	return ""
}

// markRead entfernt das UNREAD-Label für die übergebenen Mail-IDs.
func (r *Retriever) markRead(ids []string) error {
	return r.service.Users.Messages.BatchModify(user, &gmail.BatchModifyMessagesRequest{
		Ids:            ids,
		RemoveLabelIds: []string{"UNREAD"},
	}).Do()
}

// tokenFromFile liest ein gecachtes OAuth2-Token.
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
