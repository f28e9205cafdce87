package validate

// LogLevels are the accepted log level names.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevel checks a log level name. Empty selects the default.
func (v *Validator) LogLevel(field, value string) {
	if value == "" {
		return
	}
	v.OneOf(field, value, LogLevels)
}
