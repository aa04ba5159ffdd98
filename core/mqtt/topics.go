package mqtt

import (
	"fmt"
	"strings"
)

// Topic kinds used by the box protocol.
const (
	KindLevels    = "levels"
	KindEvents    = "events"
	KindStatus    = "status"
	KindDispense  = "dispense"
	KindDispensed = "dispensed"
)

// Topic is the decomposed form of a box topic: {prefix}/{boxId}/{kind}.
type Topic struct {
	Prefix string
	BoxID  string
	Kind   string
}

// String reassembles the wire form of the topic.
func (t Topic) String() string {
	return t.Prefix + "/" + t.BoxID + "/" + t.Kind
}

// ParseTopic splits a wire topic into its three segments. Topics that
// do not have exactly three non-empty segments are rejected; matching
// is structural, malformed topics never fall through silently.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return Topic{}, fmt.Errorf("malformed topic %q: want prefix/boxId/kind", topic)
	}
	for _, p := range parts {
		if p == "" {
			return Topic{}, fmt.Errorf("malformed topic %q: empty segment", topic)
		}
	}
	return Topic{Prefix: parts[0], BoxID: parts[1], Kind: parts[2]}, nil
}

// DispenseTopic is the command topic for a box.
func DispenseTopic(prefix, boxID string) string {
	return Topic{Prefix: prefix, BoxID: boxID, Kind: KindDispense}.String()
}

// DispensedTopic carries the device acknowledgment for a command.
func DispensedTopic(prefix, boxID string) string {
	return Topic{Prefix: prefix, BoxID: boxID, Kind: KindDispensed}.String()
}

// SubscriptionFilters returns the wildcard filters the connector
// subscribes to for every device under the prefix.
func SubscriptionFilters(prefix string) []string {
	return []string{
		prefix + "/+/" + KindLevels,
		prefix + "/+/" + KindEvents,
		prefix + "/+/" + KindStatus,
		prefix + "/+/" + KindDispensed,
	}
}
