package config

import (
	"fmt"
)

// Validate performs syntactic validation on raw config
func Validate(raw *RawConfig) error {
	return validateRawSyntax(raw)
}

// validateRawSyntax checks the parts of the raw config that resolution
// cannot repair with defaults
func validateRawSyntax(raw *RawConfig) error {
	if raw.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}

	if tls := raw.HTTP.TLS; tls != nil {
		if tls.Cert == "" || tls.Key == "" {
			return fmt.Errorf("http.tls requires both cert and key")
		}
		if tls.Verify != nil && tls.Verify.CA == "" {
			return fmt.Errorf("http.tls.verify.ca cannot be empty")
		}
	}

	return nil
}
