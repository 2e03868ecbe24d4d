// Package notifier sends the daily digest e-mail over Gmail SMTP.
package notifier

import (
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

const (
	smtpHost = "smtp.gmail.com"
	smtpAddr = "smtp.gmail.com:587"
)

var digestTmpl = template.Must(template.New("digest").Parse(`
<html><body style="font-family:Arial,sans-serif;color:#2c3e50;">
<h2>Amsterdam Rentals — {{.Date}}</h2>
<p>{{len .New}} new / {{len .Changed}} changed / {{len .Removed}} removed</p>

{{if .New}}<h3 style="color:#27ae60;">Nieuw ({{len .New}})</h3>
{{range .New}}{{template "listing" .}}{{end}}{{end}}

{{if .Changed}}<h3 style="color:#f39c12;">Gewijzigd ({{len .Changed}})</h3>
{{range .Changed}}{{template "listing" .}}{{end}}{{end}}

{{if .Removed}}<h3 style="color:#c0392b;">Verwijderd ({{len .Removed}})</h3>
{{range .Removed}}{{template "listing" .}}{{end}}{{end}}
</body></html>

{{define "listing"}}
<div style="border-bottom:1px solid #eee;padding:10px 0;">
	<div style="font-size:15px;font-weight:bold;">
		<a href="{{.URL}}" style="color:#2c3e50;text-decoration:none;">{{.Title}}</a>
	</div>
	<div style="font-size:14px;color:#27ae60;font-weight:bold;">{{.Price}}</div>
	<div style="font-size:13px;color:#7f8c8d;">{{.Hood}} · {{.Source}} · {{.Area}}</div>
	{{if .LastChange}}<div style="color:#c0392b;font-size:12px;">{{.LastChange}}</div>{{end}}
	<div style="font-size:12px;color:#95a5a6;margin-top:4px;">{{.Snippet}}</div>
</div>
{{end}}
`))

type digestListing struct {
	URL        string
	Title      string
	Price      string
	Hood       string
	Source     string
	Area       string
	Snippet    string
	LastChange string
}

type digestData struct {
	Date    string
	New     []digestListing
	Changed []digestListing
	Removed []digestListing
}

// Notifier renders and sends the daily digest. Missing credentials disable
// the feature with a warning; they never block the pipeline.
type Notifier struct {
	cfg    *config.Config
	logger *utils.Logger
}

// New creates a Notifier.
func New(cfg *config.Config, logger *utils.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: logger}
}

// Enabled reports whether SMTP credentials are configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.GmailAddress != "" && n.cfg.GmailAppPassword != ""
}

// SendDailyDigest sends the digest for one date. Returns an error when
// rendering or delivery fails.
func (n *Notifier) SendDailyDigest(date string, changes *models.DailyChanges) error {
	if !n.Enabled() {
		return fmt.Errorf("notifier: gmail credentials not configured")
	}

	data := digestData{
		Date:    date,
		New:     toDigestListings(changes.New, false),
		Changed: toDigestListings(changes.Changed, true),
		Removed: toDigestListings(changes.Removed, false),
	}

	var body strings.Builder
	if err := digestTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("notifier: render digest: %w", err)
	}

	subject := fmt.Sprintf("Amsterdam Rentals — Daily Update (%s) — %d new / %d changed / %d removed",
		date, len(changes.New), len(changes.Changed), len(changes.Removed))

	to := n.cfg.ToEmail
	if to == "" {
		to = n.cfg.GmailAddress
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.GmailAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body.String())

	auth := smtp.PlainAuth("", n.cfg.GmailAddress, n.cfg.GmailAppPassword, smtpHost)
	if err := smtp.SendMail(smtpAddr, auth, n.cfg.GmailAddress, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notifier: send digest: %w", err)
	}

	n.logger.Info("[notifier] Daily digest sent to %s", to)
	return nil
}

func toDigestListings(listings []*models.StoredListing, showChanges bool) []digestListing {
	out := make([]digestListing, 0, len(listings))
	for _, l := range listings {
		d := digestListing{
			URL:     l.URL,
			Title:   orDefault(l.Title, "Geen titel"),
			Price:   formatPrice(l),
			Hood:    orDefault(l.NeighborhoodMatch, "Buurt onbekend"),
			Source:  l.Source,
			Area:    formatArea(l.AreaM2),
			Snippet: utils.Truncate(l.DescriptionSnippet, 150),
		}
		if showChanges && len(l.ChangeLog) > 0 {
			d.LastChange = formatChanges(l.ChangeLog[len(l.ChangeLog)-1])
		}
		out = append(out, d)
	}
	return out
}

func formatPrice(l *models.StoredListing) string {
	if l.PriceTotalEUR == nil {
		return "Prijs onbekend"
	}
	s := fmt.Sprintf("€%.0f", *l.PriceTotalEUR)
	if l.PriceQuality == string(models.PriceUnknown) {
		s += " (servicekosten onbekend)"
	}
	if l.GWLIncluded {
		s += " (incl. g/w/l)"
	}
	return s
}

func formatArea(area *float64) string {
	if area == nil {
		return "?m²"
	}
	return fmt.Sprintf("%.0fm²", *area)
}

func formatChanges(entry models.ChangeLogEntry) string {
	var parts []string
	for field, fc := range entry.Changes {
		parts = append(parts, fmt.Sprintf("%s: %s → %s", field, orDefault(fc.Old, "?"), orDefault(fc.New, "?")))
	}
	return strings.Join(parts, " | ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
