package notify

import "github.com/sirupsen/logrus"

const (
	KindEntry   = "entry"
	KindExit    = "exit"
	KindBlocked = "blocked"
	KindError   = "error"
	KindDryRun  = "dry_run"
)

// Event is a structured trade event. The engine never formats
// human-facing text; the notification collaborator renders these.
type Event struct {
	Kind    string                 `json:"kind"`
	Pair    string                 `json:"pair"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Notifier delivers events to the operator-facing collaborator.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ev Event)
}

// LogNotifier is the default sink: structured log lines. A real
// deployment swaps in the external delivery collaborator.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logrus.New()}
}

func (n *LogNotifier) Notify(ev Event) {
	entry := n.log.WithField("kind", ev.Kind).WithField("pair", ev.Pair)
	for k, v := range ev.Details {
		entry = entry.WithField(k, v)
	}
	if ev.Kind == KindError {
		entry.Warn("Trade event")
		return
	}
	entry.Info("Trade event")
}
