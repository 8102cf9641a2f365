// Package config handles loading and validating Gray Logic Auth configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Documented fallbacks for renewal-token settings
//   - Validation of required fields and secret strength
//
// Security Considerations:
//   - Signing secrets should be set via environment variables, never committed
//   - The access and renewal secrets must differ, so a leaked access secret
//     cannot be used to forge renewal tokens
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
