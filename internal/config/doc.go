// Package config loads the advisor configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Duration-valued
// settings are written as Go duration strings ("2s", "500ms") and parsed at
// load time. One file covers both binaries: the terminal client reads the
// backend and chat sections, advisor-backend reads the server section.
package config
