package mqtt

import (
	"fmt"
	"strings"
	"time"
)

// Control commands accepted on <prefix>/control/node/<id>/<command>.
const (
	CommandCamera = "camera"
	CommandStop   = "stop"
	CommandAgain  = "again"
)

// Commands lists every control command the node subscribes to.
var Commands = []string{CommandCamera, CommandStop, CommandAgain}

// Topics builds the topic names for one node.
type Topics struct {
	Prefix string
	NodeID string
}

// NewTopics returns topics for nodeID under prefix, defaulting the prefix.
func NewTopics(prefix, nodeID string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: strings.TrimSuffix(prefix, "/"), NodeID: nodeID}
}

// Status returns <prefix>/status/node/<id>/<kind>.
func (t Topics) Status(kind string) string {
	return fmt.Sprintf("%s/status/node/%s/%s", t.Prefix, t.NodeID, kind)
}

// Control returns <prefix>/control/node/<id>/<command>.
func (t Topics) Control(command string) string {
	return fmt.Sprintf("%s/control/node/%s/%s", t.Prefix, t.NodeID, command)
}

// ParseControl returns the command named by a control topic for this node.
func (t Topics) ParseControl(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Control(""))
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	for _, c := range Commands {
		if rest == c {
			return c, true
		}
	}
	return "", false
}

// JSONPublisher is the part of Client the Reporter needs.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// ScanMessage is published on <prefix>/status/node/<id>/scan.
type ScanMessage struct {
	ScanID string            `json:"scan_id"`
	Source string            `json:"source"`
	Record map[string]string `json:"record"`
	Time   time.Time         `json:"time"`
}

// PhaseMessage is published on <prefix>/status/node/<id>/phase.
type PhaseMessage struct {
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}

// Reporter publishes scanner status for one node.
type Reporter struct {
	pub    JSONPublisher
	topics Topics
	now    func() time.Time
}

// NewReporter creates a Reporter publishing through pub.
func NewReporter(pub JSONPublisher, topics Topics) *Reporter {
	return &Reporter{pub: pub, topics: topics, now: time.Now}
}

// Scan publishes a decoded record.
func (r *Reporter) Scan(scanID, source string, record map[string]string) error {
	return r.pub.PublishJSON(r.topics.Status("scan"), ScanMessage{
		ScanID: scanID,
		Source: source,
		Record: record,
		Time:   r.now().UTC(),
	})
}

// Phase publishes a phase change.
func (r *Reporter) Phase(phase, errMsg string) error {
	return r.pub.PublishJSON(r.topics.Status("phase"), PhaseMessage{Phase: phase, Error: errMsg})
}

// Ping publishes a liveness message.
func (r *Reporter) Ping() error {
	return r.pub.PublishJSON(r.topics.Status("ping"), map[string]string{"status": "ok"})
}
