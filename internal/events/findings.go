package events

// Severity ranks validation findings.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Finding is a single validation observation.
type Finding struct {
	Severity Severity
	Code     string
	Message  string

	// Location identifies where the finding applies (file, URL, source name).
	Location string

	// Context carries additional key-value detail.
	Context map[string]string
}

// NewFinding creates a finding with the given severity, code, and message.
func NewFinding(severity Severity, code, message string) Finding {
	return Finding{Severity: severity, Code: code, Message: message}
}

// WithLocation returns a copy of the finding annotated with a location.
func (f Finding) WithLocation(location string) Finding {
	f.Location = location
	return f
}
