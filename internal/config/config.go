// Package config layers daemon options from a TOML settings file and
// environment variables under the command line, and loads and watches the
// JSON configuration payload handed to actions.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/actiond/internal/logging"
)

// EnvPrefix is prepended to the env tag of every option.
const EnvPrefix = "ACTIOND_"

// SettingsField names the options field holding the TOML settings path.
const SettingsField = "Settings"

var durationType = reflect.TypeOf(time.Duration(0))

// option is one settable field of an options struct.
type option struct {
	value reflect.Value
	flag  string
	toml  string
	env   string
}

// LoadConfig fills opts, a pointer to a flat options struct, with precedence
// CLI flags > environment > settings file > defaults.
//
// Fields map to a settings key through their `toml` tag (dotted path) and to
// an environment variable through their `env` tag prefixed with EnvPrefix.
// Fields whose flag was changed on cmd are left alone. A missing settings file
// is not an error; an unreadable or malformed one is, and so is any value
// that does not fit its field.
func LoadConfig(opts any, cmd *cobra.Command) error {
	options, settingsPath := collectOptions(opts, changedFlags(cmd))

	var errs []error
	if settingsPath != "" {
		settings, err := readSettings(settingsPath)
		if err != nil {
			return err
		}
		for _, o := range options {
			if o.toml == "" {
				continue
			}
			if value := getNestedValue(settings, o.toml); value != nil && !setFieldValue(o.value, value) {
				errs = append(errs, fmt.Errorf("settings %s: cannot use %v as %s", o.toml, value, o.value.Type()))
			}
		}
	}

	for _, o := range options {
		if o.env == "" {
			continue
		}
		if raw := os.Getenv(EnvPrefix + o.env); raw != "" && !setFieldValueFromString(o.value, raw) {
			errs = append(errs, fmt.Errorf("%s%s: cannot use %q as %s", EnvPrefix, o.env, raw, o.value.Type()))
		}
	}

	return errors.Join(errs...)
}

// changedFlags returns the flags set explicitly on the command line.
// Persistent flags are only merged into Flags() for the executing command,
// so both sets are visited.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	mark := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(mark)
	cmd.PersistentFlags().VisitAll(mark)
	return changed
}

func collectOptions(opts any, skip map[string]bool) ([]option, string) {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	var settingsPath string
	var options []option
	for i := range t.NumField() {
		field := t.Field(i)
		if field.Name == SettingsField && field.Type.Kind() == reflect.String {
			settingsPath = v.Field(i).String()
			continue
		}
		flag := fieldNameToFlag(field.Name)
		if skip[flag] || !v.Field(i).CanSet() {
			continue
		}
		options = append(options, option{
			value: v.Field(i),
			flag:  flag,
			toml:  field.Tag.Get("toml"),
			env:   field.Tag.Get("env"),
		})
	}
	return options, settingsPath
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	var settings map[string]any
	if err := toml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}

// fieldNameToFlag converts a struct field name to the flag humacli derives from it.
// Example: "LoggingLevel" -> "logging-level", "APIAddr" -> "api-addr".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				b.WriteRune('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

// setFieldValue assigns a decoded TOML value. It reports false, leaving the
// field untouched, when the value does not fit.
func setFieldValue(field reflect.Value, value any) bool {
	if field.Type() == durationType {
		s, ok := value.(string)
		return ok && setFieldValueFromString(field, s)
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if ok {
			field.SetString(s)
		}
		return ok
	case reflect.Bool:
		b, ok := value.(bool)
		if ok {
			field.SetBool(b)
		}
		return ok
	case reflect.Int, reflect.Int64:
		i, ok := value.(int64)
		if ok {
			field.SetInt(i)
		}
		return ok
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return false
		}
		slice := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return false
			}
			slice = append(slice, s)
		}
		field.Set(reflect.ValueOf(slice))
		return true
	}
	return false
}

// setFieldValueFromString parses an environment value into field. Slices
// are comma separated. It reports false when the value cannot be parsed.
func setFieldValueFromString(field reflect.Value, value string) bool {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		field.SetInt(int64(d))
		return true
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
		return true
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		field.SetBool(b)
		return true
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		field.SetInt(i)
		return true
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return false
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
		return true
	}
	return false
}

// LoadLoggingConfig reads the [logging] table of a settings file. Keys other
// than level and format are per-module levels, so modules without a dedicated
// option can still be tuned. Returns defaults if the file is missing or invalid.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
