//go:build integration

package nats

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start nats container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestQueueAndStagerAgainstNATS(t *testing.T) {
	url := startNATS(t)

	q, err := NewWithOptions(url, "medvoice.jobs.test", Options{RedeliveryDelay: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	defer q.Close()

	stager, err := NewObjectStager(q.Conn(), StagerOptions{Bucket: "medvoice-test", TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewObjectStager() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := stager.Stage(ctx, "job-1", []byte("audio-bytes")); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	// Published before any worker subscribes; the stream keeps it.
	sent := domain.JobMessage{JobID: "job-1", Kind: domain.JobKindUpload, OwnerID: "u1", StagedObject: "job-1"}
	if err := q.PublishJob(ctx, sent); err != nil {
		t.Fatalf("PublishJob() error = %v", err)
	}

	received := make(chan domain.JobMessage, 4)
	subCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	var attempts atomic.Int32
	go func() {
		done <- q.SubscribeJobs(subCtx, func(_ context.Context, msg domain.JobMessage) error {
			received <- msg
			if attempts.Add(1) == 1 {
				return errors.New("terminal state not written")
			}
			return nil
		})
	}()

	for want := 1; want <= 2; want++ {
		select {
		case msg := <-received:
			if msg.JobID != "job-1" || msg.StagedObject != "job-1" {
				t.Fatalf("unexpected message: %+v", msg)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for delivery %d", want)
		}
	}

	data, err := stager.Fetch(ctx, "job-1")
	if err != nil || string(data) != "audio-bytes" {
		t.Fatalf("Fetch() = %q, %v", data, err)
	}

	stop()
	if err := <-done; err != nil {
		t.Fatalf("SubscribeJobs() error = %v", err)
	}
}
