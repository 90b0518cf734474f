package pipeline

import "fmt"

// Progress is one checkpoint notification.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Ordinal int    `json:"ordinal"`
	Total   int    `json:"total"`
	Text    string `json:"text"`
}

func (p Progress) String() string {
	return fmt.Sprintf("Step %d of %d: %s", p.Ordinal, p.Total, p.Text)
}

// Reporter is notified synchronously at each checkpoint. Implementations
// must return promptly.
type Reporter interface {
	Report(p Progress)
}

type ReporterFunc func(p Progress)

func (f ReporterFunc) Report(p Progress) { f(p) }

// MultiReporter forwards to each member in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(p Progress) {
	for _, r := range m {
		if r != nil {
			r.Report(p)
		}
	}
}
