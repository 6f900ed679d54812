package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 6 * * *"`

	// Mail-Retrieval: "gmail" oder "imap"
	MailProvider string `envconfig:"MAIL_PROVIDER" default:"gmail"`
	AlertSender  string `envconfig:"ALERT_SENDER" default:"scholaralerts-noreply@google.com"`

	GmailCredentialsFile string `envconfig:"GMAIL_CREDENTIALS_FILE" default:".credentials/client_secret.json"`
	GmailTokenFile       string `envconfig:"GMAIL_TOKEN_FILE" default:".credentials/gmail-token.json"`

	IMAPHost     string `envconfig:"IMAP_HOST"`
	IMAPUser     string `envconfig:"IMAP_EMAIL_ADDRESS"`
	IMAPPassword string `envconfig:"IMAP_EMAIL_PASSWORD"`

	// CrossRef-Registry
	CrossrefBaseURL string `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	CrossrefMailto  string `envconfig:"CROSSREF_MAILTO" required:"true"`

	// Titel-Ähnlichkeit: nur Scores strikt über dem Threshold gelten als Match.
	MatchThreshold int `envconfig:"MATCH_THRESHOLD" default:"90"`

	// Unmatched-Stubs werden nach dieser Frist erneut gegen die Registry
	// versucht (Preprints bekommen ihre DOI oft erst später).
	RegistryRetryDays int `envconfig:"REGISTRY_RETRY_DAYS" default:"7"`

	// Kontext-Phrase und Label-Abkürzungen für den Snippet-Abgleich.
	TargetPhrase  string `envconfig:"TARGET_PHRASE" default:"natural history museum london"`
	LabelPatterns string `envconfig:"LABEL_PATTERNS" default:"nhmuk,nhml,bmnh,bm nh,nh bm,10.5519"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// TargetPhraseTokens zerlegt die Kontext-Phrase in ihre Wort-Tokens.
func (c *Config) TargetPhraseTokens() []string {
	return strings.Fields(strings.ToLower(c.TargetPhrase))
}

// LabelPatternList zerlegt die kommaseparierten Label-Abkürzungen.
func (c *Config) LabelPatternList() []string {
	var out []string
	for _, p := range strings.Split(c.LabelPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
