package system

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/field-workshops/labkit/http"
)

// UpdateHosts maps hostname to ip in the hosts file at path. Every existing
// line mentioning hostname is dropped and "ip hostname" is appended.
func UpdateHosts(path, ip, hostname string) error {
	if ip == "" || hostname == "" {
		return http.NewValidationError("ip and hostname are required", "hosts")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat hosts file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read hosts file: %w", err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, hostname) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan hosts file: %w", err)
	}
	fmt.Fprintf(&out, "%s %s\n", ip, hostname)

	// rewrite in place: container runtimes bind-mount the hosts file
	if err := os.WriteFile(path, out.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write hosts file: %w", err)
	}
	return nil
}
