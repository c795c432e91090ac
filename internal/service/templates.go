package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// MessageData is what reminder templates can reference.
type MessageData struct {
	CustomerName string
	LoanID       string
	Sequence     int
	Amount       string
	DueDate      string

	// Days is the distance to the due date without sign; DaysUntilDue keeps it.
	Days         int
	DaysUntilDue int
}

// NewMessageData builds template variables for a payment.
func NewMessageData(payment *domain.PendingPayment, daysUntilDue int) MessageData {
	days := daysUntilDue
	if days < 0 {
		days = -days
	}
	name := strings.TrimSpace(payment.CustomerName)
	if name == "" {
		name = "Customer"
	}
	data := MessageData{
		CustomerName: name,
		LoanID:       payment.LoanID,
		Sequence:     payment.Sequence,
		Amount:       utils.FormatMoney(payment.AmountDue),
		Days:         days,
		DaysUntilDue: daysUntilDue,
	}
	if payment.DueDate != nil {
		data.DueDate = payment.DueDate.Format(utils.DateLayout)
	}
	return data
}

// RenderedMessage is a message ready for a sender. HTML is only set for email.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

type messageTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func (m *messageTemplate) render(data MessageData) (RenderedMessage, error) {
	var out RenderedMessage
	var buf bytes.Buffer

	if m.subject != nil {
		if err := m.subject.Execute(&buf, data); err != nil {
			return out, err
		}
		out.Subject = buf.String()
		buf.Reset()
	}
	if err := m.text.Execute(&buf, data); err != nil {
		return out, err
	}
	out.Text = buf.String()
	if m.html != nil {
		buf.Reset()
		if err := m.html.Execute(&buf, htmlData{MessageData: data, Body: out.Text}); err != nil {
			return out, err
		}
		out.HTML = buf.String()
	}
	return out, nil
}

// htmlData lets the HTML body embed the rendered text body.
type htmlData struct {
	MessageData
	Body string
}

type templateKey struct {
	channel   domain.Channel
	direction domain.Direction
}

// TemplateSource is the raw text of a template. Subject and HTML only apply
// to email.
type TemplateSource struct {
	Subject string
	Text    string
	HTML    string
}

// Templates resolves the message for a rule and channel: a template
// registered under the rule's template reference wins, otherwise the default
// for the channel and direction is used.
type Templates struct {
	mu       sync.RWMutex
	defaults map[templateKey]*messageTemplate
	named    map[string]map[domain.Channel]*messageTemplate
}

// NewTemplates returns a registry loaded with the default messages.
func NewTemplates() *Templates {
	t := &Templates{
		defaults: make(map[templateKey]*messageTemplate),
		named:    make(map[string]map[domain.Channel]*messageTemplate),
	}
	for key, src := range defaultTemplates {
		t.defaults[key] = mustParse(fmt.Sprintf("%s.%s", key.channel, key.direction), key.channel, src)
	}
	return t
}

// Register parses src and stores it under ref for the channel.
func (t *Templates) Register(ref string, channel domain.Channel, src TemplateSource) error {
	tmpl, err := parse(ref+"."+string(channel), channel, src)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.named[ref] == nil {
		t.named[ref] = make(map[domain.Channel]*messageTemplate)
	}
	t.named[ref][channel] = tmpl
	return nil
}

// Render produces the message for a rule on a channel.
func (t *Templates) Render(channel domain.Channel, rule *domain.ReminderSchedule, data MessageData) (RenderedMessage, error) {
	t.mu.RLock()
	tmpl, ok := t.named[rule.TemplateRef][channel]
	if !ok {
		tmpl, ok = t.defaults[templateKey{channel: channel, direction: rule.Direction}]
	}
	t.mu.RUnlock()
	if !ok {
		return RenderedMessage{}, fmt.Errorf("no template for %s %s", channel, rule.Direction)
	}
	return tmpl.render(data)
}

func parse(name string, channel domain.Channel, src TemplateSource) (*messageTemplate, error) {
	if strings.TrimSpace(src.Text) == "" {
		return nil, fmt.Errorf("template %s has no text body", name)
	}
	text, err := texttemplate.New(name + ".text").Parse(src.Text)
	if err != nil {
		return nil, err
	}
	m := &messageTemplate{text: text}
	if channel != domain.ChannelEmail {
		return m, nil
	}
	if src.Subject != "" {
		if m.subject, err = texttemplate.New(name + ".subject").Parse(src.Subject); err != nil {
			return nil, err
		}
	}
	if src.HTML != "" {
		if m.html, err = htmltemplate.New(name + ".html").Parse(src.HTML); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func mustParse(name string, channel domain.Channel, src TemplateSource) *messageTemplate {
	m, err := parse(name, channel, src)
	if err != nil {
		panic(err)
	}
	return m
}

const (
	beforeDueText = "Hi {{.CustomerName}}, installment #{{.Sequence}} of loan {{.LoanID}} ({{.Amount}}) is due on {{.DueDate}}, {{.Days}} day(s) from today."
	onDueText     = "Hi {{.CustomerName}}, installment #{{.Sequence}} of loan {{.LoanID}} ({{.Amount}}) is due today, {{.DueDate}}."
	afterDueText  = "Hi {{.CustomerName}}, installment #{{.Sequence}} of loan {{.LoanID}} ({{.Amount}}) was due on {{.DueDate}} and is {{.Days}} day(s) overdue. Please pay as soon as possible."

	smsBeforeDueText = "Loan {{.LoanID}}: {{.Amount}} due {{.DueDate}} ({{.Days}}d)."
	smsOnDueText     = "Loan {{.LoanID}}: {{.Amount}} due today."
	smsAfterDueText  = "Loan {{.LoanID}}: {{.Amount}} overdue {{.Days}}d since {{.DueDate}}. Please pay now."

	emailHTML = `<p>Hi {{.CustomerName}},</p>
<p>{{.Body}}</p>
<p>Loan: <strong>{{.LoanID}}</strong><br>Installment: #{{.Sequence}}<br>Amount due: <strong>{{.Amount}}</strong><br>Due date: {{.DueDate}}</p>`
)

var defaultTemplates = map[templateKey]TemplateSource{
	{domain.ChannelEmail, domain.DirectionBeforeDue}: {
		Subject: "Payment reminder: installment due in {{.Days}} day(s)",
		Text:    beforeDueText,
		HTML:    emailHTML,
	},
	{domain.ChannelEmail, domain.DirectionOnDue}: {
		Subject: "Payment reminder: installment due today",
		Text:    onDueText,
		HTML:    emailHTML,
	},
	{domain.ChannelEmail, domain.DirectionAfterDue}: {
		Subject: "Overdue notice: installment {{.Days}} day(s) late",
		Text:    afterDueText,
		HTML:    emailHTML,
	},
	{domain.ChannelWhatsApp, domain.DirectionBeforeDue}: {Text: beforeDueText},
	{domain.ChannelWhatsApp, domain.DirectionOnDue}:     {Text: onDueText},
	{domain.ChannelWhatsApp, domain.DirectionAfterDue}:  {Text: afterDueText},
	{domain.ChannelSMS, domain.DirectionBeforeDue}:      {Text: smsBeforeDueText},
	{domain.ChannelSMS, domain.DirectionOnDue}:          {Text: smsOnDueText},
	{domain.ChannelSMS, domain.DirectionAfterDue}:       {Text: smsAfterDueText},
}
