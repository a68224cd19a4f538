package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openbadges/backend/pkg/queue"
)

type fakeSender struct {
	err  error
	sent []string
}

func (s *fakeSender) Send(_ context.Context, to, _, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

type logEntry struct {
	status string
	errMsg string
}

type fakeLog struct {
	entries []logEntry
}

func (l *fakeLog) RecordSent(_ context.Context, _, _, _ string) error {
	l.entries = append(l.entries, logEntry{status: "sent"})
	return nil
}

func (l *fakeLog) RecordFailed(_ context.Context, _, _, _, errMsg string) error {
	l.entries = append(l.entries, logEntry{status: "failed", errMsg: errMsg})
	return nil
}

// fakeSource hands out queued jobs and cancels the context when drained
// so Run terminates.
type fakeSource struct {
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (s *fakeSource) Dequeue(context.Context) (*queue.Job, error) {
	if len(s.jobs) == 0 {
		s.cancel()
		return nil, nil
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, nil
}

func (s *fakeSource) Retry(_ context.Context, job *queue.Job) error {
	s.retried = append(s.retried, job)
	return nil
}

func emailJob(t *testing.T, to string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.EmailPayload{
		EmailType:      "verification",
		RecipientEmail: to,
		Subject:        "Verify your email address",
		BodyText:       "link",
	})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: "job-1", Type: queue.JobTypeEmail, Payload: payload}
}

func TestProcessDelivers(t *testing.T) {
	sender := &fakeSender{}
	log := &fakeLog{}
	p := NewEmailProcessor(sender, log, nil, zap.NewNop())

	if err := p.Process(context.Background(), emailJob(t, "dev@example.com")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "dev@example.com" {
		t.Errorf("sent = %v", sender.sent)
	}
	if len(log.entries) != 1 || log.entries[0].status != "sent" {
		t.Errorf("log = %+v", log.entries)
	}
}

func TestProcessRecordsFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay refused")}
	log := &fakeLog{}
	p := NewEmailProcessor(sender, log, nil, zap.NewNop())

	err := p.Process(context.Background(), emailJob(t, "dev@example.com"))
	if err == nil {
		t.Fatal("send failure not propagated")
	}
	if len(log.entries) != 1 || log.entries[0].status != "failed" {
		t.Fatalf("log = %+v", log.entries)
	}
	if log.entries[0].errMsg != "relay refused" {
		t.Errorf("logged error = %q", log.entries[0].errMsg)
	}
}

func TestProcessRejectsBadJobs(t *testing.T) {
	p := NewEmailProcessor(&fakeSender{}, nil, nil, zap.NewNop())

	wrong := &queue.Job{ID: "job-2", Type: "transcode", Payload: []byte("{}")}
	if err := p.Process(context.Background(), wrong); err == nil {
		t.Error("unknown job type accepted")
	}
	garbled := &queue.Job{ID: "job-3", Type: queue.JobTypeEmail, Payload: []byte("not json")}
	if err := p.Process(context.Background(), garbled); err == nil {
		t.Error("unparseable payload accepted")
	}
}

func TestRunRetriesFailedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{cancel: cancel, jobs: []*queue.Job{
		emailJob(t, "first@example.com"),
		emailJob(t, "second@example.com"),
	}}
	sender := &fakeSender{err: errors.New("relay down")}

	p := NewEmailProcessor(sender, nil, source, zap.NewNop())
	p.backoff = time.Millisecond
	p.Run(ctx)

	if len(source.retried) != 2 {
		t.Fatalf("retried = %d jobs, want 2", len(source.retried))
	}
}

func TestRunDeliversQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{cancel: cancel, jobs: []*queue.Job{emailJob(t, "dev@example.com")}}
	sender := &fakeSender{}
	log := &fakeLog{}

	p := NewEmailProcessor(sender, log, source, zap.NewNop())
	p.backoff = time.Millisecond
	p.Run(ctx)

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %v", sender.sent)
	}
	if len(source.retried) != 0 {
		t.Errorf("retried = %d jobs, want 0", len(source.retried))
	}
	if len(log.entries) != 1 || log.entries[0].status != "sent" {
		t.Errorf("log = %+v", log.entries)
	}
}
