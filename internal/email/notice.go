package email

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"text/template"
	"time"

	"github.com/JBD-GER/maklernull-sub000/internal/models"
)

// KindHeader carries the notice kind so mock senders can file messages by it.
const KindHeader = "X-Notice-Kind"

type noticeTemplate struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("02.01.2006")
	},
}

func mustNotice(subject, body string) noticeTemplate {
	return noticeTemplate{
		subject: template.Must(template.New("subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New("body").Funcs(funcs).Parse(body)),
	}
}

var noticeTemplates = map[models.NoticeKind]noticeTemplate{
	models.NoticeActivated: mustNotice(
		`Ihre Anzeige „{{.Title}}“ ist online`,
		`Hallo {{.Name}},

Ihre Zahlung ist eingegangen und Ihre Anzeige „{{.Title}}“ ist jetzt veröffentlicht.
Paket: {{.PackageCode}}
Laufzeit bis: {{date .PeriodEnd}}

Ihr Maklernull-Team`),
	models.NoticeExpired: mustNotice(
		`Die Laufzeit Ihrer Anzeige „{{.Title}}“ ist abgelaufen`,
		`Hallo {{.Name}},

die Laufzeit Ihrer Anzeige „{{.Title}}“ ist am {{date .PeriodEnd}} abgelaufen. Die Anzeige ist deaktiviert
und kann jederzeit mit einem neuen Paket wieder aktiviert werden.

Ihr Maklernull-Team`),
	models.NoticeRenewal: mustNotice(
		`Verlängerung Ihrer Anzeige „{{.Title}}“`,
		`Hallo {{.Name}},

Sie haben die automatische Verlängerung aktiviert. Für Ihre Anzeige „{{.Title}}“ steht eine Zahlung
für das Paket {{.PackageCode}} bereit:

{{.RedirectURL}}

Nach Zahlungseingang ist die Anzeige sofort wieder online.

Ihr Maklernull-Team`),
}

// ComposeNotice renders the notice into a complete plain-text message.
func ComposeNotice(from string, n models.OwnerNotice, at time.Time) (subject string, rawMessage []byte, err error) {
	tmpl, ok := noticeTemplates[n.Kind]
	if !ok {
		return "", nil, fmt.Errorf("no template for notice kind %q", n.Kind)
	}
	if n.Email == "" {
		return "", nil, fmt.Errorf("notice %s for listing %s has no recipient", n.Kind, n.ListingID)
	}

	var subjectBuf, bodyBuf bytes.Buffer
	if err := tmpl.subject.Execute(&subjectBuf, n); err != nil {
		return "", nil, fmt.Errorf("failed to render subject of %s: %w", n.Kind, err)
	}
	if err := tmpl.body.Execute(&bodyBuf, n); err != nil {
		return "", nil, fmt.Errorf("failed to render body of %s: %w", n.Kind, err)
	}
	subject = subjectBuf.String()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", n.Email))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	sb.WriteString("Date: " + at.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString(fmt.Sprintf("%s: %s\r\n", KindHeader, n.Kind))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(bodyBuf.String(), "\n", "\r\n"))
	sb.WriteString("\r\n")

	return subject, []byte(sb.String()), nil
}
