package mqtt

import "testing"

func TestParseTopic(t *testing.T) {
	tp, err := ParseTopic("medbox/01/levels")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tp.Prefix != "medbox" || tp.BoxID != "01" || tp.Kind != KindLevels {
		t.Fatalf("unexpected topic %+v", tp)
	}
	if tp.String() != "medbox/01/levels" {
		t.Fatalf("roundtrip mismatch: %s", tp.String())
	}
}

func TestParseTopicRejectsMalformed(t *testing.T) {
	for _, topic := range []string{
		"",
		"medbox",
		"medbox/01",
		"medbox/01/levels/extra",
		"medbox//levels",
		"/01/levels",
		"medbox/01/",
	} {
		if _, err := ParseTopic(topic); err == nil {
			t.Errorf("expected error for %q", topic)
		}
	}
}

func TestSubscriptionFilters(t *testing.T) {
	filters := SubscriptionFilters("medbox")
	want := []string{"medbox/+/levels", "medbox/+/events", "medbox/+/status", "medbox/+/dispensed"}
	if len(filters) != len(want) {
		t.Fatalf("expected %d filters got %d", len(want), len(filters))
	}
	for i, f := range filters {
		if f != want[i] {
			t.Errorf("filter %d: want %s got %s", i, want[i], f)
		}
	}
}
