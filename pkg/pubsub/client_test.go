package pubsub

import (
	"testing"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{"gl-prod", "gl-payment-events", "projects/gl-prod/topics/gl-payment-events"},
		{"gl-prod", "  gl-payment-events ", "projects/gl-prod/topics/gl-payment-events"},
		{"gl-prod", "projects/other/topics/ops", "projects/other/topics/ops"},
		{"", "gl-payment-events", ""},
		{"gl-prod", "", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q,%q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{
		PaymentsTopic:     "events",
		NotificationTopic: "events",
		ListingsTopic:     "listings",
		OperatorTopic:     " ",
	})
	if len(names) != 2 || names[0] != "events" || names[1] != "listings" {
		t.Fatalf("unexpected topic names %v", names)
	}
}
