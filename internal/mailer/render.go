package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/notifyhub/waitlist/internal/domain"
)

// DynamicPlaceholder marks where a campaign's message is spliced into its
// static content.
const DynamicPlaceholder = "<!-- DYNAMIC_CONTENT_PLACEHOLDER -->"

// DefaultStaticContent returns the boilerplate stored with every new
// campaign.
func DefaultStaticContent(brand string) string {
	b := htmltemplate.HTMLEscapeString(brand)
	return `<p>Hello from the ` + b + ` team!</p>
<p>We hope you're as excited as we are about the progress we're making.</p>

` + DynamicPlaceholder + `

<p>Thank you for being part of our journey. We can't wait to share more updates with you soon!</p>
<p>Best regards,<br>The ` + b + ` Team</p>`
}

// Renderer builds the welcome and campaign update emails.
type Renderer struct {
	brand string

	welcomeHTML *htmltemplate.Template
	welcomeText *texttemplate.Template
	updateHTML  *htmltemplate.Template
	updateText  *texttemplate.Template
}

func NewRenderer(brand string) *Renderer {
	return &Renderer{
		brand:       brand,
		welcomeHTML: htmltemplate.Must(htmltemplate.New("welcome.html").Parse(welcomeHTMLTmpl)),
		welcomeText: texttemplate.Must(texttemplate.New("welcome.txt").Parse(welcomeTextTmpl)),
		updateHTML:  htmltemplate.Must(htmltemplate.New("update.html").Parse(updateHTMLTmpl)),
		updateText:  texttemplate.Must(texttemplate.New("update.txt").Parse(updateTextTmpl)),
	}
}

type welcomeData struct {
	Brand    string
	Name     string
	JoinedOn string
}

type updateData struct {
	Brand    string
	Name     string
	Subject  string
	Message  string
	Body     htmltemplate.HTML
	UpdateNo int
}

// Welcome renders the signup confirmation for m.
func (r *Renderer) Welcome(m *domain.Member) (*Message, error) {
	data := welcomeData{
		Brand:    r.brand,
		Name:     m.DisplayName(),
		JoinedOn: m.JoinedAt.UTC().Format("Jan 02, 2006"),
	}

	html, text, err := execute(r.welcomeHTML, r.welcomeText, data)
	if err != nil {
		return nil, fmt.Errorf("render welcome: %w", err)
	}
	return &Message{
		To:       m.Email,
		ToName:   nameOf(m),
		Subject:  "Welcome to the " + r.brand + " waitlist!",
		HTMLBody: html,
		TextBody: text,
	}, nil
}

// Update renders campaign c for member m. The footer numbers the email as
// the member's next update.
func (r *Renderer) Update(m *domain.Member, c *domain.Campaign) (*Message, error) {
	data := updateData{
		Brand:    r.brand,
		Name:     m.DisplayName(),
		Subject:  c.Subject,
		Message:  c.Message,
		Body:     r.updateBody(c),
		UpdateNo: m.UpdatesReceived + 1,
	}

	html, text, err := execute(r.updateHTML, r.updateText, data)
	if err != nil {
		return nil, fmt.Errorf("render update: %w", err)
	}
	return &Message{
		To:       m.Email,
		ToName:   nameOf(m),
		Subject:  c.Subject,
		HTMLBody: html,
		TextBody: text,
	}, nil
}

// updateBody splices the escaped message into the campaign's static
// content. Static content is operator-authored and trusted.
func (r *Renderer) updateBody(c *domain.Campaign) htmltemplate.HTML {
	static := c.StaticContent
	if static == "" {
		static = DefaultStaticContent(r.brand)
	}

	block := `<div class="update-message"><h3>Latest Update:</h3>` + nl2br(c.Message) + `</div>`
	if !strings.Contains(static, DynamicPlaceholder) {
		return htmltemplate.HTML(static + "\n" + block)
	}
	return htmltemplate.HTML(strings.Replace(static, DynamicPlaceholder, block, 1))
}

func nl2br(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(htmltemplate.HTMLEscapeString(s), "\n", "<br>\n")
}

func nameOf(m *domain.Member) string {
	if m.Name == nil {
		return ""
	}
	return *m.Name
}

func execute(h *htmltemplate.Template, t *texttemplate.Template, data any) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err := t.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

const welcomeHTMLTmpl = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Welcome to {{.Brand}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Welcome to {{.Brand}}!</h1>
    <h2>Hello {{.Name}}!</h2>
    <p>Thank you for joining the {{.Brand}} waitlist! We're thrilled to have you as part of our early community.</p>
    <p>What happens next?</p>
    <ul>
      <li>We'll keep you updated on our progress</li>
      <li>You'll get early access when we launch</li>
      <li>Exclusive benefits for waitlist members</li>
    </ul>
    <p>Best regards,<br><strong>The {{.Brand}} Team</strong></p>
    <hr>
    <p style="font-size: 12px; color: #666;">You're receiving this email because you joined our waitlist on {{.JoinedOn}}.</p>
  </div>
</body>
</html>
`

const welcomeTextTmpl = `Welcome to the {{.Brand}} waitlist!

Hello {{.Name}}!

Thank you for joining the {{.Brand}} waitlist! We're thrilled to have you as part of our early community.

What happens next?
- We'll keep you updated on our progress
- You'll get early access when we launch
- Exclusive benefits for waitlist members

Best regards,
The {{.Brand}} Team

---
You're receiving this email because you joined our waitlist on {{.JoinedOn}}.
`

const updateHTMLTmpl = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>{{.Brand}} Update</h1>
    <p>{{.Subject}}</p>
    <h2>Hello {{.Name}}!</h2>
    {{.Body}}
    <hr>
    <p style="font-size: 12px; color: #666;">You're receiving this email because you joined our waitlist.</p>
    <p style="font-size: 12px; color: #666;">This is update #{{.UpdateNo}} we're sending you.</p>
  </div>
</body>
</html>
`

const updateTextTmpl = `{{.Subject}}

Hello {{.Name}}!

{{.Message}}

Best regards,
The {{.Brand}} Team

---
You're receiving this email because you joined our waitlist.
This is update #{{.UpdateNo}} we're sending you.
`
