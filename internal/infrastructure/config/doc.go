// Package config handles loading and validating Gray Logic Edge configuration.
//
// This package manages:
//   - Built-in defaults (broker mqtt://hal.lan, 1s link poll, 10s monitor)
//   - Build-time credentials injected with -ldflags
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Wi-Fi and broker passwords should come from build-time values or
//     environment variables, not a world-readable file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/edge.yaml", config.BuildDefaults{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker)
package config
