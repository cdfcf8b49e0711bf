package nats

import (
	"fmt"
	"strings"
)

// Subject hierarchy for job-chief on NATS.
//
//	jobchief.queue.{name}.items  -- work items drained by a queue's workers
//	jobchief.events.queue.{name} -- run outcomes of one queue (core pub/sub)
//	jobchief.events.all          -- run outcomes of every queue
const (
	StreamName    = "JOBCHIEF"
	SubjectPrefix = "jobchief"

	// KV bucket names
	BucketTriggers = "jobchief-triggers"
	BucketStats    = "jobchief-stats"
)

// QueueItemsSubject returns the subject work items of a queue are published on.
// Example: jobchief.queue.emails.items
func QueueItemsSubject(queue string) string {
	return fmt.Sprintf("%s.queue.%s.items", SubjectPrefix, queue)
}

// QueueAllSubject returns the wildcard subject for all queue messages.
// Used for stream subject filter.
func QueueAllSubject() string {
	return fmt.Sprintf("%s.queue.>", SubjectPrefix)
}

// EventQueueSubject returns the run event subject of a queue.
func EventQueueSubject(queue string) string {
	return fmt.Sprintf("%s.events.queue.%s", SubjectPrefix, queue)
}

// EventAllSubject returns the subject every run event is also published on.
func EventAllSubject() string {
	return SubjectPrefix + ".events.all"
}

// ConsumerName returns the durable consumer name for a queue. Workers bind
// to the same consumer.
func ConsumerName(queue string) string {
	return fmt.Sprintf("%s-%s", SubjectPrefix, queue)
}

// StatsKey returns the KV key of one counter in the stats bucket.
// Example: emails.failed
func StatsKey(queue, stat string) string {
	return queue + "." + stat
}

// ParseStatsKey splits a stats bucket key into queue and counter name.
func ParseStatsKey(key string) (queue, stat string, ok bool) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
