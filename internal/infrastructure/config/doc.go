// Package config handles loading and validating Librarium Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LIBRARIUM_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Secrets (JWT signing key, InfluxDB token, S3 keys) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//   - There is no default signing secret; startup fails without one
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
