/*
Package events provides an in-memory event broker for the storage core's
change notifications.

The events package implements a lightweight event bus for broadcasting
commit-point and task-queue events to interested subscribers. It enables
loose coupling between the batch/changelog layer and protocol-facing
consumers (IMAP IDLE loops, JMAP push, CalDAV/CardDAV sync clients) that
want to react to commits without polling the changelog on a timer.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Commit Events:                             │          │
	│  │    - commit.point                           │          │
	│  │    - record.created/updated/deleted         │          │
	│  │                                              │          │
	│  │  Task Events:                               │          │
	│  │    - task.queued                            │          │
	│  │    - task.failed                            │          │
	│  │    - task.completed                         │          │
	│  │                                              │          │
	│  │  Store Events:                              │          │
	│  │    - blob.purged                            │          │
	│  │    - quota.exceeded                         │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  IMAP: wake IDLE connections on new mail    │          │
	│  │  JMAP: push state changes to clients        │          │
	│  │  Task worker: react to task.queued promptly │          │
	│  │  Metrics: count events for dashboards       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: unique event identifier
  - Type: event type (commit.point, task.failed, etc.)
  - Timestamp: when the event occurred
  - Account, SyncCollection, ChangeID: what changed
  - Message: human-readable description
  - Metadata: key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber receives events via channel

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map and closed

# Usage

Creating and Starting Broker:

	import "github.com/cuemby/warren/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing After a Commit:

	broker.Publish(&events.Event{
		Type:           events.EventCommitPoint,
		Account:        7,
		SyncCollection: uint8(keys.SyncEmail),
		ChangeID:       changeID,
		Message:        "batch committed",
	})

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventCommitPoint:
				wakeIdleConnections(event.Account, event.SyncCollection)
			case events.EventTaskFailed:
				handleTaskFailed(event)
			}
		}
	}()

# Integration Points

No package in this module publishes to or subscribes to a Broker. The
event types name the notifications a caller that wires the store into a
server can publish:

  - commit.point after a batch commits (internal/store/batch)
  - task.queued/task.failed/task.completed around task execution
    (internal/store/task)
  - blob.purged after a purge pass (internal/store/blob)
  - quota.exceeded when the façade refuses a write (store)

# Design Patterns

Non-Blocking Publish:
  - Publish sends to a buffered channel and returns immediately
  - Events may be dropped if the buffer is full
  - Trade-off: throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets its own channel
  - Full buffers skip to prevent blocking other subscribers

Fire-and-Forget:
  - No acknowledgment from subscribers, no retry on delivery failure
  - Not a substitute for the changelog: a missed event only costs a
    subscriber an extra poll, it never loses data

# Troubleshooting

Events Not Received:
  - Check: broker.Start() called before Publish
  - Check: subscriber goroutine running and not blocked

Events Dropped:
  - Cause: subscriber buffer full (processing too slow)
  - Solution: process events asynchronously, or poll the changelog
    directly to catch up

Memory Leak:
  - Cause: subscribers not unsubscribed
  - Solution: always defer broker.Unsubscribe(sub)

# Limitations

  - In-memory only, no persistence or replay
  - No guaranteed delivery — the changelog is the source of truth;
    subscribers that miss an event should fall back to a sync query
  - No topic-based filtering (all events broadcast, filter client-side)

# See Also

  - internal/store/changelog for the durable source of truth these events
    are a low-latency hint for
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
