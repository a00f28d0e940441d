// Package config handles loading and validating Hydroconnect Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HYDROCONNECT_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (session secret, MQTT/Redis passwords, InfluxDB token)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - There is no default session secret; startup fails without one
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
