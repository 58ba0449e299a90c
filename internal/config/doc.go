// Package config defines installer settings and provides helpers to load,
// validate and save them in YAML format.
//
// All fields have working defaults, so a settings file is optional.
package config
