// Package config handles loading and validating ircon bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (IRCON_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.DefaultPort)
//
// A device table is declared per device:
//
//	devices:
//	  - table: living
//	    identifier: "10.0.0.5:9000"
//	    columns: [mode, temperature, power]
package config
