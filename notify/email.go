package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"inventory_watch/config"
	"inventory_watch/models"
)

var vehicleTable = template.Must(template.New("vehicles").Parse(`<h2>{{.Heading}}</h2>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Vehicle</th><th align="left">Price</th><th align="left">Dealership</th><th align="left">VIN</th></tr>
{{range .Vehicles}}<tr>
<td><a href="{{.URL}}">{{.Title}}</a></td>
<td>{{if .Price}}{{.Price}}{{end}}</td>
<td>{{.Dealership}} ({{.InventoryKind}})</td>
<td>{{if .VIN}}{{.VIN}}{{end}}</td>
</tr>{{end}}
</table>`))

// EmailNotifier sends over SMTP with PLAIN auth, retrying without auth when
// the server does not offer it.
type EmailNotifier struct {
	cfg  config.NotifyConfig
	now  func() time.Time
	send func(e *email.Email) error
}

func NewEmailNotifier(cfg config.NotifyConfig) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, now: time.Now}
	n.send = n.smtpSend
	return n
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) NotifyNew(ctx context.Context, vehicles []models.LedgerEntry) error {
	if len(vehicles) == 0 {
		return nil
	}

	var text strings.Builder
	for i, v := range vehicles {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(formatVehicle(v))
	}

	var html bytes.Buffer
	err := vehicleTable.Execute(&html, map[string]any{
		"Heading":  Subject(vehicles),
		"Vehicles": vehicles,
	})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	mail := n.newMail(Subject(vehicles))
	mail.Text = []byte(text.String())
	mail.HTML = html.Bytes()
	return n.send(mail)
}

func (n *EmailNotifier) NotifyNoMatches(ctx context.Context, info NoMatches) error {
	mail := n.newMail("No new inventory matches")
	mail.Text = []byte(FormatNoMatches(info, n.now()))
	return n.send(mail)
}

func (n *EmailNotifier) newMail(subject string) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Inventory Watch <%s>", n.cfg.EmailFrom)
	mail.To = n.cfg.EmailTo
	mail.Subject = subject
	return mail
}

func (n *EmailNotifier) smtpSend(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	err := mail.Send(addr, smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
