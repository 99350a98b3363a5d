// Package outreach alerts the sales team about newly found brands and
// keeps an audit trail of every email attempt.
package outreach

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/pkg/email"
)

// Email statuses recorded in the audit log.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ValidationError reports a lead that cannot be emailed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "outreach: " + e.Message }

// Notifier sends one alert per brand lead.
type Notifier struct {
	client  email.Client
	logs    store.EmailLogStore
	cfg     config.EmailConfig
	metrics *monitoring.Metrics
}

// NewNotifier creates a Notifier. logs and metrics may be nil.
func NewNotifier(client email.Client, logs store.EmailLogStore, cfg config.EmailConfig, metrics *monitoring.Metrics) *Notifier {
	return &Notifier{client: client, logs: logs, cfg: cfg, metrics: metrics}
}

// ContactAddress is the generic inbox of the brand's website.
func ContactAddress(lead model.BrandLead) string {
	domain := lead.Domain()
	if domain == "" {
		return ""
	}
	return "info@" + domain
}

// Notify emails the lead to the configured recipients, or to the brand's
// contact address when none are configured. The attempt is logged whether
// or not the send succeeds.
func (n *Notifier) Notify(ctx context.Context, lead model.BrandLead, source model.EmailSource) error {
	if strings.TrimSpace(lead.Name) == "" {
		return &ValidationError{Message: "brand name is required"}
	}
	contact := ContactAddress(lead)
	if contact == "" {
		return &ValidationError{Message: "brand website is required"}
	}

	to := n.cfg.To
	if len(to) == 0 {
		to = []string{contact}
	}
	msg, err := buildMessage(lead, contact)
	if err != nil {
		return err
	}
	msg.From = n.cfg.From
	msg.To = to
	msg.ReplyTo = n.cfg.ReplyTo

	entry := &model.EmailLog{
		ID:        uuid.New().String(),
		BrandName: lead.Name,
		Domain:    lead.Domain(),
		Recipient: strings.Join(to, ","),
		Source:    source,
		Status:    StatusSent,
	}
	_, sendErr := n.client.Send(ctx, msg)
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
	}
	n.record(ctx, entry)

	if sendErr != nil {
		return eris.Wrapf(sendErr, "outreach: notify %s", entry.Domain)
	}
	zap.L().Info("outreach: email sent",
		zap.String("brand", lead.Name),
		zap.String("source", string(source)),
	)
	return nil
}

func (n *Notifier) record(ctx context.Context, entry *model.EmailLog) {
	if n.metrics != nil {
		n.metrics.EmailsSent.WithLabelValues(string(entry.Source), entry.Status).Inc()
	}
	if n.logs == nil {
		return
	}
	if err := n.logs.LogEmail(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Warn("outreach: failed to record email",
			zap.String("domain", entry.Domain),
			zap.Error(err),
		)
	}
}

type alertView struct {
	Name     string
	Website  string
	City     string
	Country  string
	Price    string
	Style    string
	Overview string
	Contact  string
}

func buildMessage(lead model.BrandLead, contact string) (email.Message, error) {
	v := alertView{
		Name:     lead.Name,
		Website:  lead.WebsiteURL,
		City:     lead.City,
		Country:  lead.OriginCountry,
		Price:    displayPrice(lead),
		Style:    model.Deref(lead.BrandStyle),
		Overview: model.Deref(lead.CompanyOverview),
		Contact:  contact,
	}
	var html bytes.Buffer
	if err := alertTemplate.Execute(&html, v); err != nil {
		return email.Message{}, eris.Wrap(err, "outreach: render alert")
	}
	return email.Message{
		Subject: "Novo Potencial Cliente: " + lead.Name,
		HTML:    html.String(),
		Text:    fmt.Sprintf("Novo cliente detetado: %s\nWebsite: %s\nCidade: %s\nContacto: %s", lead.Name, lead.WebsiteURL, lead.City, contact),
	}, nil
}

func displayPrice(lead model.BrandLead) string {
	switch {
	case lead.AvgSuitPriceEUR > 0:
		return fmt.Sprintf("€%.0f", lead.AvgSuitPriceEUR)
	case lead.AverageSuitPriceUSD > 0:
		return fmt.Sprintf("$%.0f", lead.AverageSuitPriceUSD)
	default:
		return "Sob consulta"
	}
}

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1e293b; line-height: 1.6;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #e2e8f0; border-radius: 8px;">
    <h2 style="margin: 0 0 20px; color: #0f172a;">Novo Potencial Cliente Detetado</h2>
    <p>Existe uma oportunidade de negócio com o cliente <strong>{{.Name}}</strong>.</p>
    <div style="background-color: #f8fafc; padding: 20px; border-radius: 8px; margin: 20px 0;">
      <h3 style="margin-top: 0;">{{.Name}}</h3>
      <p><a href="{{.Website}}" target="_blank">{{.Website}}</a></p>
      <p><strong>Cidade:</strong> {{.City}}{{if .Country}}, {{.Country}}{{end}}</p>
      <p><strong>Preço Médio Fato:</strong> {{.Price}}</p>
      {{- if .Style}}
      <p><strong>Estilo:</strong> {{.Style}}</p>
      {{- end}}
      {{- if .Overview}}
      <p><strong>Descrição:</strong> {{.Overview}}</p>
      {{- end}}
      <p><strong>Contacto:</strong> {{.Contact}}</p>
    </div>
    <a href="{{.Website}}" style="display: inline-block; background-color: #0f172a; color: white; padding: 10px 20px; text-decoration: none; border-radius: 6px;">Visitar Website</a>
  </div>
</body>
</html>
`))
