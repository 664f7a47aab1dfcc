package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/field-workshops/labkit/http"
)

const (
	tagStart = "{{"
	tagEnd   = "}}"

	TagAppName       = "APP_NAME"
	TagAppPort       = "APP_PORT"
	TagHostName      = "HOSTNAME"
	TagParticipantID = "PARTICIPANT_ID"
	TagIPAddress     = "IP_ADDRESS"
)

// App is one application exposed through the rendered manifest.
type App struct {
	Name string
	Port string
	IP   string
}

// Sandbox carries the values of the host the lab runs on.
type Sandbox struct {
	HostName      string
	ParticipantID string
}

// ParseApps parses "name:port:ip,name:port:ip".
func ParseApps(apps string) ([]App, error) {
	if strings.TrimSpace(apps) == "" {
		return nil, http.NewValidationError("no apps given", "apps")
	}

	var out []App
	for _, entry := range strings.Split(apps, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" {
			return nil, http.NewValidationError(fmt.Sprintf("app %q must be name:port:ip", entry), "apps")
		}
		out = append(out, App{Name: parts[0], Port: parts[1], IP: parts[2]})
	}
	return out, nil
}

// Render substitutes the app and sandbox placeholders in template.
// Tags are matched with surrounding spaces trimmed; unknown tags and a trailing
// unclosed "{{" are kept verbatim.
func Render(template string, app App, sb Sandbox) (string, error) {
	values := map[string]string{
		TagAppName:       app.Name,
		TagAppPort:       app.Port,
		TagHostName:      sb.HostName,
		TagParticipantID: sb.ParticipantID,
		TagIPAddress:     app.IP,
	}

	head, tail := template, ""
	if i := strings.LastIndex(template, tagStart); i >= 0 && !strings.Contains(template[i+len(tagStart):], tagEnd) {
		head, tail = template[:i], template[i:]
	}

	out, err := fasttemplate.ExecuteFuncStringWithErr(head, tagStart, tagEnd, func(w io.Writer, tag string) (int, error) {
		if v, ok := values[strings.TrimSpace(tag)]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte(tagStart + tag + tagEnd))
	})
	if err != nil {
		return "", err
	}
	return out + tail, nil
}

// RenderApps renders templatePath once per app into outDir/nginx-<name>.yaml
// and returns the written paths in input order.
func RenderApps(templatePath, outDir string, apps []App, sb Sandbox) ([]string, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}

	paths := make([]string, 0, len(apps))
	for _, app := range apps {
		content, err := Render(string(data), app, sb)
		if err != nil {
			return paths, fmt.Errorf("failed to render %s: %w", app.Name, err)
		}

		out := filepath.Join(outDir, fmt.Sprintf("nginx-%s.yaml", app.Name))
		if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", out, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
