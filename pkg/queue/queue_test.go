package queue

import "testing"

func TestRetryDestination(t *testing.T) {
	for attempt := 1; attempt < MaxRetries; attempt++ {
		if got := retryDestination(attempt); got != QueueEmails {
			t.Errorf("attempt %d → %q, want work queue", attempt, got)
		}
	}
	if got := retryDestination(MaxRetries); got != QueueDLQ {
		t.Errorf("attempt %d → %q, want DLQ", MaxRetries, got)
	}
	if got := retryDestination(MaxRetries + 1); got != QueueDLQ {
		t.Errorf("attempt %d → %q, want DLQ", MaxRetries+1, got)
	}
}
