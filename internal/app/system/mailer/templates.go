// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

// notePolicy strips all markup from requester-supplied note text before it
// is embedded in email HTML.
var notePolicy = bluemonday.StrictPolicy()

// RequestEmailData holds data for the "blood request near you" email sent to
// matched donors.
type RequestEmailData struct {
	DonorName     string
	RequesterName string
	BloodType     string
	Units         int
	Emergency     bool
	Note          string
	ExpiresIn     string // e.g. "2 hours"; empty for routine requests
}

// BuildRequestEmail creates the donor notification email with both HTML and
// text bodies. The caller sets To. The payload is purely informational and
// safe to receive more than once.
func BuildRequestEmail(data RequestEmailData) Email {
	data.Note = notePolicy.Sanitize(data.Note)

	subject := fmt.Sprintf("%s blood needed near you", data.BloodType)
	if data.Emergency {
		subject = fmt.Sprintf("URGENT: %s blood needed near you", data.BloodType)
	}
	return Email{
		Subject:  subject,
		TextBody: buildRequestText(data),
		HTMLBody: buildRequestHTML(data),
	}
}

func buildRequestText(data RequestEmailData) string {
	var buf bytes.Buffer
	if data.DonorName != "" {
		buf.WriteString(fmt.Sprintf("Hello %s,\n\n", data.DonorName))
	}
	if data.Emergency {
		buf.WriteString("An emergency blood request was posted near you.\n\n")
	} else {
		buf.WriteString("A blood request was posted near you.\n\n")
	}
	buf.WriteString(fmt.Sprintf("Blood type: %s\n", data.BloodType))
	buf.WriteString(fmt.Sprintf("Units needed: %d\n", data.Units))
	buf.WriteString(fmt.Sprintf("Requested by: %s\n", data.RequesterName))
	if data.Note != "" {
		buf.WriteString(fmt.Sprintf("Note: %s\n", data.Note))
	}
	if data.ExpiresIn != "" {
		buf.WriteString(fmt.Sprintf("\nThis request expires in %s.\n", data.ExpiresIn))
	}
	buf.WriteString("\nOpen the app to respond. If you cannot donate right now, no action is needed.\n")
	return buf.String()
}

func buildRequestHTML(data RequestEmailData) string {
	tmpl := template.Must(template.New("request").Parse(requestHTMLTemplate))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}

// FulfilledEmailData holds data for the "your request is fulfilled" email
// sent to the requester.
type FulfilledEmailData struct {
	RequesterName string
	BloodType     string
	Units         int
}

// BuildFulfilledEmail creates the requester notification sent once when a
// request transitions to fulfilled. The caller sets To.
func BuildFulfilledEmail(data FulfilledEmailData) Email {
	return Email{
		Subject:  "Your blood request has been fulfilled",
		TextBody: buildFulfilledText(data),
		HTMLBody: buildFulfilledHTML(data),
	}
}

func buildFulfilledText(data FulfilledEmailData) string {
	var buf bytes.Buffer
	if data.RequesterName != "" {
		buf.WriteString(fmt.Sprintf("Hello %s,\n\n", data.RequesterName))
	}
	buf.WriteString(fmt.Sprintf("Good news: your request for %d unit(s) of %s has been fulfilled by donors.\n\n",
		data.Units, data.BloodType))
	buf.WriteString("Thank you for using BloodBridge.\n")
	return buf.String()
}

func buildFulfilledHTML(data FulfilledEmailData) string {
	tmpl := template.Must(template.New("fulfilled").Parse(fulfilledHTMLTemplate))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}

const requestHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Blood Request</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px; box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #dc2626;">BloodBridge</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              {{if .Emergency}}
              <p style="margin: 0 0 16px; font-size: 16px; font-weight: 600; color: #dc2626;">
                Emergency blood request near you
              </p>
              {{else}}
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151;">
                A blood request was posted near you.
              </p>
              {{end}}

              <div style="background-color: #f3f4f6; border-radius: 8px; padding: 24px; text-align: center; margin-bottom: 24px;">
                <span style="font-size: 32px; font-weight: 700; color: #1f2937;">{{.BloodType}}</span>
                <p style="margin: 8px 0 0; font-size: 14px; color: #6b7280;">{{.Units}} unit(s) needed</p>
              </div>

              <p style="margin: 0 0 8px; font-size: 14px; color: #374151;">Requested by {{.RequesterName}}.</p>
              {{if .Note}}
              <p style="margin: 0 0 8px; font-size: 14px; color: #6b7280;">Note: {{.Note}}</p>
              {{end}}
              {{if .ExpiresIn}}
              <p style="margin: 16px 0 0; font-size: 13px; color: #9ca3af;">This request expires in {{.ExpiresIn}}.</p>
              {{end}}
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb; border-radius: 0 0 8px 8px;">
              <p style="margin: 0; font-size: 12px; color: #9ca3af; text-align: center;">
                Open the app to respond. If you cannot donate right now, no action is needed.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`

const fulfilledHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Request Fulfilled</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px; box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #16a34a;">BloodBridge</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151;">
                Good news{{if .RequesterName}}, {{.RequesterName}}{{end}}: your request for
                {{.Units}} unit(s) of {{.BloodType}} has been fulfilled by donors.
              </p>
              <p style="margin: 0; font-size: 14px; color: #6b7280;">
                Thank you for using BloodBridge.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
