package config

import (
	"fmt"
	"strings"
)

// ValidateServices checks the bookable service catalog loaded from
// services.yaml: non-empty, no blanks, no duplicates.
func ValidateServices(services []string) error {
	if len(services) == 0 {
		return fmt.Errorf("services list is empty")
	}

	seen := make(map[string]struct{}, len(services))
	for i, svc := range services {
		name := strings.TrimSpace(svc)
		if name == "" {
			return fmt.Errorf("service %d: name is empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("service %q: duplicate entry", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
