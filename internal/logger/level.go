package logger

import "github.com/pkg/errors"

//go:generate enumer -type=Level -output=level_string.go

// Level is the severity of a log entry, ordered least to most severe.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// AllLevels is ordered least severe to most severe.
var AllLevels = []Level{Debug, Info, Warn, Error}

// ParseLevel looks up a Level by its lowercase name.
func ParseLevel(s string) (Level, error) {
	for _, l := range AllLevels {
		if s == l.String() {
			return l, nil
		}
	}
	return -1, errors.Errorf("unknown log level %q", s)
}

// Short returns a fixed-width 4-letter form for aligned log output.
func (l Level) Short() string {
	switch l {
	case Debug:
		return "DEBG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERRO"
	default:
		return l.String()
	}
}
