package logger

import (
	"fmt"
	"io"
	"sort"
)

// StderrOutlet writes logfmt-ish lines to an io.Writer (os.Stderr by
// default), the teacher's fallback outlet for a daemon with no configured
// log sinks.
type StderrOutlet struct {
	w io.Writer
}

func NewStderrOutlet(w io.Writer) *StderrOutlet {
	return &StderrOutlet{w: w}
}

func (o *StderrOutlet) WriteEntry(entry Entry) error {
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	line := fmt.Sprintf("%s %s %s", entry.Time.Format("2006-01-02T15:04:05.000Z07:00"), entry.Level.Short(), entry.Message)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, entry.Fields[k])
	}
	_, err := fmt.Fprintln(o.w, line)
	return err
}

// CollectOutlet buffers entries in memory; used by tests that want to
// assert on log output without a real sink.
type CollectOutlet struct {
	Entries []Entry
}

func (o *CollectOutlet) WriteEntry(entry Entry) error {
	o.Entries = append(o.Entries, entry)
	return nil
}

// ForAllLevels builds the {level: outlets} map New expects, registering
// outlet for every level >= minLevel.
func ForAllLevels(outlet Outlet, minLevel Level) map[Level][]Outlet {
	m := map[Level][]Outlet{}
	for _, l := range AllLevels {
		if l >= minLevel {
			m[l] = append(m[l], outlet)
		}
	}
	return m
}
