// Package prompt builds the two instruction prompts sent to the text
// generator. Rendering is deterministic: the same record fields always
// produce the same byte string, with missing fields substituted by fixed
// placeholders before templating.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Placeholder values for missing fields.
const (
	PlaceholderNA        = "N/A"
	PlaceholderNoSubject = "No Subject"
	PlaceholderNoContent = "No Content"
)

const defaultDealFollowUp = `You are a sales assistant. Draft a short, friendly follow-up email for a newly created deal. Introduce yourself, reference the deal details below, and suggest a next step. Keep it under 150 words and do not invent facts that are not in the details.

Deal name: {{.Name}}
Amount: {{.Amount}}
Stage: {{.Stage}}
Close date: {{.CloseDate}}
Description: {{.Description}}

Return only the email body text.`

const defaultCustomerReply = `You are a sales assistant. Draft a professional, helpful reply to the customer email below. Acknowledge their message, answer what you can from the message itself, and propose a concrete next step. Keep it under 150 words.

Subject: {{.Subject}}
Message: {{.Content}}

Return only the reply body text.`

// dealFields are the interpolation inputs for the follow-up template.
type dealFields struct {
	Name        string
	Amount      string
	Stage       string
	CloseDate   string
	Description string
}

// replyFields are the interpolation inputs for the customer-reply template.
type replyFields struct {
	Subject string
	Content string
}

// Library holds the parsed prompt templates.
type Library struct {
	deal  *template.Template
	reply *template.Template
}

// Default returns a library with the built-in templates.
func Default() *Library {
	return &Library{
		deal:  template.Must(template.New("deal_follow_up").Parse(defaultDealFollowUp)),
		reply: template.Must(template.New("customer_reply").Parse(defaultCustomerReply)),
	}
}

// DealFollowUp renders the follow-up prompt from deal properties. Missing
// properties render as "N/A".
func (l *Library) DealFollowUp(props map[string]string) (string, error) {
	f := dealFields{
		Name:        orPlaceholder(props["dealname"], PlaceholderNA),
		Amount:      orPlaceholder(props["amount"], PlaceholderNA),
		Stage:       orPlaceholder(props["dealstage"], PlaceholderNA),
		CloseDate:   orPlaceholder(props["closedate"], PlaceholderNA),
		Description: orPlaceholder(props["description"], PlaceholderNA),
	}
	return render(l.deal, f)
}

// CustomerReply renders the reply prompt from the latest inbound message.
func (l *Library) CustomerReply(subject, content string) (string, error) {
	f := replyFields{
		Subject: orPlaceholder(subject, PlaceholderNoSubject),
		Content: orPlaceholder(content, PlaceholderNoContent),
	}
	return render(l.reply, f)
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
