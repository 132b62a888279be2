package mailer

import (
	"bytes"
	"html/template"
	"net/url"

	"github.com/samber/oops"
)

const PasswordResetSubject = "Reset your password"

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hello,</p>
<p>We received a request to reset the password of {{.Email}}.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>The link expires in {{.ExpiresIn}}. If you did not ask for it you can ignore this message.</p>
</body>
</html>
`))

// PasswordResetLink appends the token and email to the configured reset page.
func PasswordResetLink(baseURL, email, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", oops.Code("MAIL_INVALID_RESET_URL").Wrap(err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func RenderPasswordReset(email, link, expiresIn string) (string, error) {
	var buf bytes.Buffer
	err := passwordResetTemplate.Execute(&buf, struct {
		Email     string
		Link      string
		ExpiresIn string
	}{Email: email, Link: link, ExpiresIn: expiresIn})
	if err != nil {
		return "", oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}
	return buf.String(), nil
}
