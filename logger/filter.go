package logger

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/buger/jsonparser"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

// DefaultMaxDepth is the default maximum recursion depth for filtering
const DefaultMaxDepth = 8

// FilterConfig defines the configuration for sensitive data filtering
type FilterConfig struct {
	// SensitiveFields contains field names that should be masked in logs
	SensitiveFields []string
	// MaskValue is the value used to replace sensitive data (default: "***")
	MaskValue string
}

// DefaultFilterConfig masks the credentials lab provisioning passes around:
// platform API keys, bearer tokens and identity-provider passwords.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "pwd",
			"secret", "api-key", "api_key", "apikey",
			"token", "authorization", "credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks values whose key looks like a credential.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a new filter with the given configuration
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString filters sensitive data from string values
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if f.isSensitiveField(key) {
		return f.maskString(value)
	}
	return value
}

// FilterValue filters sensitive data from maps, header sets and slices
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filterValue(key, value, DefaultMaxDepth)
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

// FilterPayload masks sensitive keys inside a JSON or form-encoded body.
// Bodies in any other format are returned unchanged.
func (f *SensitiveDataFilter) FilterPayload(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return body
	}
	switch trimmed[0] {
	case '{':
		return f.filterJSON(trimmed, jsonparser.Object, DefaultMaxDepth)
	case '[':
		return f.filterJSON(trimmed, jsonparser.Array, DefaultMaxDepth)
	}
	if bytes.ContainsAny(trimmed, " \t\r\n") || !bytes.Contains(trimmed, []byte("=")) {
		return body
	}
	return f.filterForm(trimmed)
}

func (f *SensitiveDataFilter) filterJSON(data []byte, kind jsonparser.ValueType, depth int) []byte {
	if depth <= 0 {
		return data
	}
	if kind == jsonparser.Array {
		return f.filterJSONArray(data, depth)
	}

	masked := []byte(`"` + f.config.MaskValue + `"`)
	var out []byte
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name := string(key)
		var replacement []byte
		switch {
		case f.isSensitiveField(name):
			replacement = masked
		case dataType == jsonparser.Object || dataType == jsonparser.Array:
			if filtered := f.filterJSON(value, dataType, depth-1); !bytes.Equal(filtered, value) {
				replacement = filtered
			}
		}
		if replacement == nil {
			return nil
		}
		if out == nil {
			out = bytes.Clone(data)
		}
		updated, err := jsonparser.Set(out, replacement, name)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return []byte(f.config.MaskValue)
	}
	if out == nil {
		return data
	}
	return out
}

func (f *SensitiveDataFilter) filterJSONArray(data []byte, depth int) []byte {
	var elems [][]byte
	changed := false
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		switch dataType {
		case jsonparser.Object, jsonparser.Array:
			filtered := f.filterJSON(value, dataType, depth-1)
			changed = changed || !bytes.Equal(filtered, value)
			elems = append(elems, filtered)
		case jsonparser.String:
			elems = append(elems, append(append([]byte{'"'}, value...), '"'))
		default:
			elems = append(elems, value)
		}
	})
	if err != nil {
		return []byte(f.config.MaskValue)
	}
	if !changed {
		return data
	}
	return append(append([]byte{'['}, bytes.Join(elems, []byte{','})...), ']')
}

// filterForm masks values of sensitive keys in an application/x-www-form-urlencoded body, keeping pair order.
func (f *SensitiveDataFilter) filterForm(body []byte) []byte {
	pairs := strings.Split(string(body), "&")
	changed := false
	for i, pair := range pairs {
		rawKey, _, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if f.isSensitiveField(key) {
			pairs[i] = rawKey + "=" + url.QueryEscape(f.config.MaskValue)
			changed = true
		}
	}
	if !changed {
		return body
	}
	return []byte(strings.Join(pairs, "&"))
}

func (f *SensitiveDataFilter) filterValue(key string, value any, depth int) any {
	if f.isSensitiveField(key) {
		if s, ok := value.(string); ok {
			return f.maskString(s)
		}
		return f.config.MaskValue
	}
	if value == nil || depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = f.filterValue(k, inner, depth-1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, inner := range v {
			out[k] = f.FilterString(k, inner)
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(v))
		for k, inner := range v {
			if f.isSensitiveField(k) {
				out[k] = []string{f.config.MaskValue}
				continue
			}
			out[k] = inner
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = f.filterValue(key, inner, depth-1)
		}
		return out
	default:
		return value
	}
}

// isSensitiveField checks if a field name is considered sensitive
func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(sensitive)) {
			return true
		}
	}
	return false
}

// maskString masks a sensitive string. URLs keep their structure with only the password hidden.
func (f *SensitiveDataFilter) maskString(value string) string {
	if value == "" {
		return value
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if parsed, err := url.Parse(value); err == nil && parsed.User != nil {
			if _, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(parsed.User.Username(), f.config.MaskValue)
				return parsed.String()
			}
		}
	}
	return f.config.MaskValue
}
