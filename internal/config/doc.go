// Package config loads the quill-console YAML configuration with
// ${VAR} environment expansion, defaults, and validation.
package config
