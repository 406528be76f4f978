package email

import (
	"bytes"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"
)

const welcomeSubject = "Your Account Has Been Created"
const recoverySubject = "Reset your password"

// WelcomeVars fills the invite email. Exactly one of RecoveryLink or
// TemporaryPassword is normally set.
type WelcomeVars struct {
	Name              string
	TenantName        string
	LoginURL          string
	RecoveryLink      string
	TemporaryPassword bool
}

type RecoveryVars struct {
	Name string
	Link string
	TTL  time.Duration
}

var (
	welcomeText = texttpl.Must(texttpl.New("welcome_txt").Parse(`Hello {{.Name}},

An account has been created for you{{if .TenantName}} in {{.TenantName}}{{end}}.
{{if .RecoveryLink}}
Choose your password here: {{.RecoveryLink}}
{{else if .TemporaryPassword}}
Your administrator will give you a temporary password. You will be asked to change it when you first sign in.
{{end}}
Sign in at {{.LoginURL}}
`))
	welcomeHTML = htmltpl.Must(htmltpl.New("welcome_html").Parse(`<p>Hello {{.Name}},</p>
<p>An account has been created for you{{if .TenantName}} in <strong>{{.TenantName}}</strong>{{end}}.</p>
{{if .RecoveryLink}}<p><a href="{{.RecoveryLink}}">Choose your password</a></p>
{{else if .TemporaryPassword}}<p>Your administrator will give you a temporary password. You will be asked to change it when you first sign in.</p>
{{end}}<p><a href="{{.LoginURL}}">Sign in</a></p>
`))
	recoveryText = texttpl.Must(texttpl.New("recovery_txt").Parse(`Hello {{.Name}},

Use this link to set a new password. It expires in {{.TTL}} and works once.

{{.Link}}

If you did not ask for this, ignore this email.
`))
	recoveryHTML = htmltpl.Must(htmltpl.New("recovery_html").Parse(`<p>Hello {{.Name}},</p>
<p>Use this link to set a new password. It expires in {{.TTL}} and works once.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this, ignore this email.</p>
`))
)

func Welcome(to string, vars WelcomeVars) (Message, error) {
	return render(to, welcomeSubject, welcomeText, welcomeHTML, vars)
}

func Recovery(to string, vars RecoveryVars) (Message, error) {
	return render(to, recoverySubject, recoveryText, recoveryHTML, vars)
}

func render(to, subject string, text *texttpl.Template, html *htmltpl.Template, vars any) (Message, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, vars); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	if err := html.Execute(&hb, vars); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	return Message{To: to, Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}
