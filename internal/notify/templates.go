package notify

import (
	"bytes"
	"html/template"
)

const welcomeSubject = "Welcome to International Civil Service Conference"

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto;">
	<h2>Welcome, {{.Name}}</h2>
	<p>An account has been created for you on the International Civil Service Conference portal.</p>
	<div style="background-color: #eef5ee; border-left: 4px solid #2e7d32; padding: 15px; margin: 20px 0;">
		{{if .Organization}}<strong>Organization:</strong> {{.Organization}}<br>{{end}}
		{{if .ShortCode}}<strong>Organization code:</strong> {{.ShortCode}}<br>{{end}}
		<strong>Login:</strong> {{.Login}}<br>
		<strong>Password:</strong> {{.Password}}
	</div>
	<p>Please sign in and change this password at your earliest convenience.</p>
	<hr>
	<p style="color: #666; font-size: 12px;">International Civil Service Conference</p>
</body>
</html>
`))

type welcomeData struct {
	Name         string
	Organization string
	ShortCode    string
	Login        string
	Password     string
}

func renderWelcome(data welcomeData) (string, error) {
	var buf bytes.Buffer
	if err := welcomeTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func welcomeSMS(name, login, password string) string {
	return "Welcome to the International Civil Service Conference, " + name +
		". Login: " + login + " Temporary password: " + password
}
