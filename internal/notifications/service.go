package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// MaxMessageLength is the Telegram message limit, applied to every channel
const MaxMessageLength = 4096

const defaultTelegramAPI = "https://api.telegram.org"

// Service handles sending notifications via various channels
type Service struct {
	config      *config.Config
	client      *resty.Client
	telegramAPI string
	dialer      func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config:      cfg,
		client:      resty.New().SetTimeout(15 * time.Second),
		telegramAPI: defaultTelegramAPI,
	}
	s.dialer = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// Truncate cuts message to at most max characters
func Truncate(message string, max int) string {
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	return string(runes[:max])
}

// Notify sends message to every configured channel. The returned error joins channel failures;
// callers log it and carry on.
func (s *Service) Notify(ctx context.Context, message string) error {
	message = Truncate(message, MaxMessageLength)
	title, _, _ := strings.Cut(message, "\n")

	return s.fanOut(
		func() error { return s.sendTelegram(ctx, message) },
		func() error {
			return s.sendToTeams(ctx, &TeamsMessage{
				Type:    "MessageCard",
				Context: "https://schema.org/extensions",
				Title:   title,
				Text:    message,
			})
		},
		func() error { return s.sendEmail(title, message, "") },
	)
}

// SendReport sends a run summary via configured notification channels
func (s *Service) SendReport(ctx context.Context, report *models.RunReport) error {
	text := Truncate(report.Text(), MaxMessageLength)

	return s.fanOut(
		func() error { return s.sendTelegram(ctx, text) },
		func() error { return s.sendToTeams(ctx, s.buildTeamsMessage(report)) },
		func() error {
			htmlBody, err := s.buildEmailHTML(report)
			if err != nil {
				return fmt.Errorf("failed to build email HTML: %w", err)
			}
			return s.sendEmail(report.Title(), text, htmlBody)
		},
	)
}

// fanOut runs telegram, teams and email senders, skipping unconfigured channels
func (s *Service) fanOut(telegram, teams, email func() error) error {
	var errs []error

	if s.config.TelegramBotToken != "" && s.config.TelegramChatID != "" {
		if err := telegram(); err != nil {
			logrus.Errorf("Failed to send Telegram notification: %v", err)
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		} else {
			logrus.Info("Successfully sent Telegram notification")
		}
	}

	if s.config.TeamsWebhookURL != "" {
		if err := teams(); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errs = append(errs, fmt.Errorf("teams: %w", err))
		} else {
			logrus.Info("Successfully sent Teams notification")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := email(); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			logrus.Info("Successfully sent email notification")
		}
	}

	return errors.Join(errs...)
}

func (s *Service) sendTelegram(ctx context.Context, text string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(telegramMessage{ChatID: s.config.TelegramChatID, Text: text, DisableWebPagePreview: true}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", s.telegramAPI, s.config.TelegramBotToken))
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("Telegram API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendToTeams(ctx context.Context, message *TeamsMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.RunReport) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   report.Title(),
		Text:    report.Message,
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Run", Value: report.RunID},
			{Name: "Started", Value: report.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
			{Name: "Units", Value: fmt.Sprintf("%d", report.Units)},
			{Name: "Relevant", Value: fmt.Sprintf("%d", report.Relevant)},
			{Name: "Rewritten", Value: fmt.Sprintf("%d", report.Rewritten)},
			{Name: "Failed", Value: fmt.Sprintf("%d", report.RewriteFailed)},
			{Name: "Synced", Value: fmt.Sprintf("%d to %s", report.Synced, report.TargetPartition)},
		},
		Markdown: true,
	})

	if len(report.Errors) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Errors",
			ActivityText:  models.ErrorDigest(report.Errors),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	if err := s.dialer(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

const reportTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Analyzer Run Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1f2937; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .errors { border-left: 4px solid #d13438; padding: 10px; background-color: #fafafa; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>Run {{.RunID}} started {{.StartedAt.UTC.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        {{if .Message}}<p>{{.Message}}</p>{{end}}
        <p><strong>Raw rows:</strong> {{.RawRows}}</p>
        <p><strong>Units:</strong> {{.Units}} ({{.AlreadyProcessed}} already processed, {{.Relevant}} relevant)</p>
        <p><strong>Rewrites:</strong> {{.Rewritten}} ok, {{.RewriteFailed}} failed, {{.EmptySource}} empty</p>
        <p><strong>Synced to {{.TargetPartition}}:</strong> {{.Synced}}</p>
    </div>

    {{if .Errors}}
    <div class="errors">
        <h2>Errors</h2>
        <ul>
        {{range $i, $e := .Errors}}{{if lt $i 5}}<li>{{$e}}</li>{{end}}{{end}}
        </ul>
        {{if gt (len .Errors) 5}}<p>... and {{sub (len .Errors) 5}} more.</p>{{end}}
    </div>
    {{end}}
</body>
</html>
`

func (s *Service) buildEmailHTML(report *models.RunReport) (string, error) {
	t, err := template.New("email").Funcs(template.FuncMap{
		"sub": func(a, b int) int { return a - b },
	}).Parse(reportTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}
