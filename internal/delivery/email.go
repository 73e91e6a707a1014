package delivery

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Subject is the subject line of every report email.
const Subject = "Uw DISC rapport is gereed"

const defaultGreetingName = "Deelnemer"

// EmailData feeds the report email templates.
type EmailData struct {
	FirstName string
	Company   string
	Year      int
}

var htmlBody = htmltemplate.Must(htmltemplate.New("report-email.html").Parse(`<!DOCTYPE html>
<html lang="nl">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Je persoonlijke TLC Profiel</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <table width="100%" cellpadding="0" cellspacing="0" style="background-color: #f4f4f4; padding: 20px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" style="background-color: #FFFFFF; border-radius: 8px; overflow: hidden;">
          <tr>
            <td style="padding: 20px 40px;">
              <h1 style="color: #333333; font-size: 24px; margin: 0 0 20px 0; text-align: center;">Je persoonlijke TLC Profiel</h1>
              <p style="color: #666666; font-size: 16px; line-height: 1.6; margin: 0 0 20px 0;">Beste {{.FirstName}},</p>
              <p style="color: #666666; font-size: 16px; line-height: 1.6; margin: 0 0 20px 0;">Hierbij je persoonlijke TLC Profiel.</p>
              <p style="color: #666666; font-size: 16px; line-height: 1.6; margin: 0 0 20px 0;">Je volledige rapport is bijgevoegd als PDF-bestand.</p>
              <p style="color: #666666; font-size: 16px; line-height: 1.6; margin: 0;">Hartelijke groet,<br>Het team van TLC Profielen</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 20px 40px; background-color: #f9f9f9; text-align: center;">
              <p style="color: #999999; font-size: 12px; margin: 0;">&copy; {{.Year}} {{.Company}}. Alle rechten voorbehouden.</p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`))

var textBody = texttemplate.Must(texttemplate.New("report-email.txt").Parse(`Beste {{.FirstName}},

Hierbij je persoonlijke TLC Profiel.

Je volledige rapport is bijgevoegd als PDF-bestand.

Hartelijke groet,
Het team van TLC Profielen

© {{.Year}} {{.Company}}. Alle rechten voorbehouden.
`))

// GreetingName returns the first word of the candidate name.
func GreetingName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return defaultGreetingName
	}
	return fields[0]
}

// RenderEmail returns the HTML and plain text bodies.
func RenderEmail(data EmailData) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := htmlBody.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err := textBody.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}
