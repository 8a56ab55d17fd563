package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingAck struct {
	acked, nacked, rejected bool
	requeue                 bool
}

func (r *recordingAck) Ack(uint64, bool) error { r.acked = true; return nil }

func (r *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	r.nacked, r.requeue = true, requeue
	return nil
}

func (r *recordingAck) Reject(_ uint64, requeue bool) error {
	r.rejected, r.requeue = true, requeue
	return nil
}

func TestSettle(t *testing.T) {
	transient := errors.New("database is locked")
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        Outcome
	}{
		{"success", nil, false, Ack},
		{"success on redelivery", nil, true, Ack},
		{"first failure", transient, false, Requeue},
		{"failure after redelivery", transient, true, Park},
		{"permanent failure", Permanent(transient), false, Park},
		{"wrapped permanent failure", fmt.Errorf("ingest: %w", Permanent(transient)), false, Park},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Settle(tt.err, tt.redelivered); got != tt.want {
				t.Errorf("Settle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	base := errors.New("bad json")
	err := Permanent(base)
	if !errors.Is(err, base) {
		t.Error("Permanent should wrap the cause")
	}
	if !IsPermanent(err) || IsPermanent(base) {
		t.Error("IsPermanent mismatch")
	}
}

func TestHandleDelivery(t *testing.T) {
	tests := []struct {
		name        string
		handleErr   error
		redelivered bool
		check       func(t *testing.T, r *recordingAck)
	}{
		{"ack", nil, false, func(t *testing.T, r *recordingAck) {
			if !r.acked {
				t.Error("expected ack")
			}
		}},
		{"requeue", errors.New("boom"), false, func(t *testing.T, r *recordingAck) {
			if !r.nacked || !r.requeue {
				t.Errorf("expected nack with requeue, got %+v", r)
			}
		}},
		{"park", errors.New("boom"), true, func(t *testing.T, r *recordingAck) {
			if !r.rejected || r.requeue {
				t.Errorf("expected reject without requeue, got %+v", r)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			var got []byte
			d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Redelivered: tt.redelivered, Body: []byte(`{"lectureId":1}`)}
			handleDelivery(context.Background(), d, func(_ context.Context, body []byte) error {
				got = body
				return tt.handleErr
			})
			if string(got) != `{"lectureId":1}` {
				t.Errorf("handler got body %q", got)
			}
			tt.check(t, ack)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "amqp://localhost"}.withDefaults()
	if cfg.Exchange != "test-generation" || cfg.Queue != "test.queue" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.DeadLetterExchange() != "test-generation.dlx" {
		t.Errorf("DeadLetterExchange() = %q", cfg.DeadLetterExchange())
	}
	if cfg.ParkingQueue() != "test.queue.parked" {
		t.Errorf("ParkingQueue() = %q", cfg.ParkingQueue())
	}
}
