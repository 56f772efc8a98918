package mq

import "strings"

// DefaultQueue receives tasks whose names carry no queue prefix.
const DefaultQueue = "default"

// RouteForTask selects the queue for a task name: the part before the first
// ':' ("downloader:sentinel" goes to "downloader"), or DefaultQueue.
func RouteForTask(task string) string {
	queue, _, ok := strings.Cut(task, ":")
	if !ok || queue == "" {
		return DefaultQueue
	}
	return queue
}
