package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

type fakeClient struct {
	channel  string
	messages [][]byte
	err      error
	closed   bool
}

func (f *fakeClient) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) Pipeline() redis.Pipeliner { return nil }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	log, _ := test.NewNullLogger()
	client := &fakeClient{}
	fp := &FramePublisher{client: client, channel: "frames", log: log}

	frame := &protocol.Frame{
		Source:     "IN1",
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Decimation: 64,
		Samples:    []float64{1, 0, -3.5},
		Faults:     1,
	}
	if err := fp.Publish(context.Background(), frame); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if client.channel != "frames" || len(client.messages) != 1 {
		t.Fatalf("published %d messages on %q", len(client.messages), client.channel)
	}
	var got protocol.Frame
	if err := json.Unmarshal(client.messages[0], &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Source != "IN1" || got.Decimation != 64 || len(got.Samples) != 3 || got.Faults != 1 {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublish_Error(t *testing.T) {
	log, _ := test.NewNullLogger()
	cause := errors.New("connection refused")
	fp := &FramePublisher{client: &fakeClient{err: cause}, channel: "frames", log: log}

	err := fp.Publish(context.Background(), &protocol.Frame{Source: "IN2"})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	fp := &FramePublisher{client: client}
	fp.Close()
	if !client.closed {
		t.Error("client not closed")
	}

	var p Publisher = Discard{}
	if err := p.Publish(context.Background(), &protocol.Frame{}); err != nil {
		t.Errorf("Discard.Publish = %v", err)
	}
}
