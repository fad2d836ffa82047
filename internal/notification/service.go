package notification

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers one message with HTML and plain-text bodies.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type Config struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(cfg Config) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), textBody, htmlBody)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer writes messages to the context logger instead of sending them.
// It is used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, _, textBody string) error {
	zerolog.Ctx(ctx).Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", textBody).
		Msg("email delivery disabled; message logged")
	return nil
}

type Service struct {
	mailer Mailer
}

// NewService picks SendGrid when an API key is configured and the log
// mailer otherwise.
func NewService(cfg Config) *Service {
	if cfg.SendGridAPIKey == "" {
		return &Service{mailer: LogMailer{}}
	}
	return &Service{mailer: NewSendGridMailer(cfg)}
}

// NewServiceWithMailer is for callers that bring their own transport.
func NewServiceWithMailer(m Mailer) *Service {
	return &Service{mailer: m}
}

// PlanShare is the content of a plan-shared email.
type PlanShare struct {
	PlanName        string
	SharedBy        string
	Category        string
	Location        string
	PanelSize       int
	BatteryCapacity int
	UpfrontCost     int
	PaybackPeriod   float64
	URL             string
}

// markdownPunct is every character CommonMark lets a backslash escape.
const markdownPunct = "\\`*_{}[]()#+-.!|<>~&\"'$%,/:;=?@^"

// escapeMarkdown makes user text render literally: no links, emphasis,
// raw HTML or table cell breaks. Line breaks are folded to spaces.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 128 && strings.ContainsRune(markdownPunct, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var planSharedTmpl = template.Must(template.New("plan_shared").
	Funcs(template.FuncMap{"md": escapeMarkdown}).
	Parse(`# {{md .PlanName}}

{{if .SharedBy}}**{{md .SharedBy}}** shared{{else}}Someone shared{{end}} a solar plan with you.

| | |
|---|---|
| Category | {{md .Category}} |
| Location | {{md .Location}} |
| Solar panels | {{.PanelSize}} kW |
| Battery storage | {{.BatteryCapacity}} kWh |
| Upfront cost | ${{.UpfrontCost}} |
| Payback period | {{printf "%.1f" .PaybackPeriod}} years |

[Open the plan]({{.URL}})
`))

// RenderPlanShared builds the subject and the Markdown and HTML bodies for
// a plan-shared email.
func RenderPlanShared(share PlanShare) (subject, markdown, html string, err error) {
	var md bytes.Buffer
	if err := planSharedTmpl.Execute(&md, share); err != nil {
		return "", "", "", fmt.Errorf("render plan_shared: %w", err)
	}
	var out bytes.Buffer
	if err := markdownRenderer.Convert(md.Bytes(), &out); err != nil {
		return "", "", "", fmt.Errorf("convert plan_shared: %w", err)
	}
	return "Solar plan shared with you: " + share.PlanName, md.String(), out.String(), nil
}

func (s *Service) SendPlanShared(ctx context.Context, to string, share PlanShare) error {
	subject, text, html, err := RenderPlanShared(share)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, to, subject, html, text)
}
