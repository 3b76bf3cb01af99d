package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "feed-built", crawler.FeedBuiltEvent{RunID: "run-1"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "feed-audit", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if ev, ok := msgs[0].Payload.(crawler.FeedBuiltEvent); !ok || ev.RunID != "run-1" {
		t.Fatalf("payload not recorded correctly: %+v", msgs[0])
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	if _, err := pub.Publish(context.Background(), "feed-built", nil); err == nil {
		t.Fatal("expected publish error")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
	pub.FailWith(nil)
	if _, err := pub.Publish(context.Background(), "feed-built", nil); err != nil {
		t.Fatalf("expected publish to recover, got %v", err)
	}
}
