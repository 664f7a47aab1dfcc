package manifest

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/field-workshops/labkit/http"
)

//go:embed templates/credentials.html.tmpl
var defaultCredentialsTemplate string

// Credential is one row of the participant credentials page.
type Credential struct {
	Name     string
	URL      string
	Username string
	Password string
}

// CredentialsHTML renders the credentials page. The template is fetched from
// templateURL with client, or the built-in one is used when templateURL is empty.
// Templates use html/template syntax and range over .Credentials.
func CredentialsHTML(ctx context.Context, client http.Client, templateURL string, creds []Credential) (string, error) {
	text := defaultCredentialsTemplate
	if templateURL != "" {
		resp, err := client.Get(ctx, &http.Request{URL: templateURL})
		if err != nil {
			return "", fmt.Errorf("failed to fetch credentials template: %w", err)
		}
		text = string(resp.Body)
	}

	tmpl, err := template.New("credentials").Parse(text)
	if err != nil {
		return "", http.NewValidationError(fmt.Sprintf("invalid credentials template: %v", err), "template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Credentials []Credential }{creds}); err != nil {
		return "", fmt.Errorf("failed to render credentials template: %w", err)
	}
	return buf.String(), nil
}
