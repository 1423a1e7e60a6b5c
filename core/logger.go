package core

// Logger is the service-wide leveled logger contract.
// Implementations may interpret extra args as context: an error to report,
// a map of extra data, or a user.User to attribute the event to.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
