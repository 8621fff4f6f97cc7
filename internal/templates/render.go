// internal/templates/render.go
package templates

import (
	"fmt"
	"html/template"
	"strings"

	"autoshop-notifications/internal/models"

	"github.com/jaytaylor/html2text"
)

// Content is the rendered output for one channel.
type Content struct {
	Title    string
	Body     string // plain text
	BodyHTML string // set for the email channel only
}

// Render substitutes variables into the template. Email content wraps the
// HTML fragment in the shared base layout and always carries a derived
// plain-text part; other channels use plain substitution.
func Render(t *models.NotificationTemplate, vars map[string]interface{}) (*Content, error) {
	content := &Content{
		Title: Substitute(t.Subject, vars),
		Body:  Substitute(t.BodyText, vars),
	}

	if t.Channel != models.ChannelEmail {
		return content, nil
	}

	fragment := t.BodyHTML
	if fragment == "" {
		fragment = "<p>" + template.HTMLEscapeString(t.BodyText) + "</p>"
	}
	html, err := wrapLayout(content.Title, Substitute(fragment, vars))
	if err != nil {
		return nil, fmt.Errorf("wrap email layout: %w", err)
	}
	content.BodyHTML = html

	// The text part is derived from the final HTML so footer chrome and any
	// layout-only content survive in the fallback.
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		// Substituted plain body is still a valid fallback.
		text = content.Body
	}
	content.Body = text

	return content, nil
}

// Substitute replaces {{var}} placeholders with values from vars. Unresolved
// placeholders render as empty string, never an error: a deleted referenced
// entity must not fail the whole notification.
func Substitute(tmpl string, vars map[string]interface{}) string {
	result := tmpl

	for k, v := range vars {
		placeholder := "{{" + k + "}}"
		value := ""
		switch val := v.(type) {
		case string:
			value = val
		case int:
			value = fmt.Sprintf("%d", val)
		case float64:
			value = formatNumber(val)
		default:
			if v != nil {
				value = fmt.Sprintf("%v", v)
			}
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Strip placeholders that had no value.
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}

// formatNumber renders whole floats without a trailing ".00" noise.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// baseLayout is the shared header/footer chrome around every email body.
var baseLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:Arial,Helvetica,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background-color:#1e293b;padding:20px 32px;">
<span style="color:#ffffff;font-size:18px;font-weight:bold;">{{.Title}}</span>
</td></tr>
<tr><td style="padding:28px 32px;color:#334155;font-size:15px;line-height:1.6;">
{{.Body}}
</td></tr>
<tr><td style="padding:16px 32px;background-color:#f8fafc;color:#94a3b8;font-size:12px;">
This is an automated notification from your auto service workspace. Manage your notification preferences in your account settings.
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

func wrapLayout(title, bodyFragment string) (string, error) {
	var sb strings.Builder
	err := baseLayout.Execute(&sb, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(bodyFragment),
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
