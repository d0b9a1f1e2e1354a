package producer

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
)

type fakeClient struct {
	refreshErr error
	closed     bool
}

func (f *fakeClient) RefreshMetadata(...string) error { return f.refreshErr }
func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := New(nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Producer.Idempotent || cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("expected idempotent fully acknowledged writes")
	}
}

func TestCloneConfigCopies(t *testing.T) {
	orig := DefaultConfig()
	cloned := cloneConfig(orig)
	cloned.ClientID = "other"
	if orig.ClientID == "other" {
		t.Fatalf("expected clone to leave original untouched")
	}
	if cloneConfig(nil) == nil {
		t.Fatalf("expected default config for nil input")
	}
}

func TestRecordHeadersSortedCopies(t *testing.T) {
	if recordHeaders(nil) != nil {
		t.Fatalf("expected nil headers for empty input")
	}
	src := map[string][]byte{
		"source":       []byte("netlify-contact"),
		"content-type": []byte("application/json"),
	}
	out := recordHeaders(src)
	if len(out) != 2 || string(out[0].Key) != "content-type" || string(out[1].Key) != "source" {
		t.Fatalf("unexpected headers %+v", out)
	}
	src["content-type"][0] = 'X'
	if string(out[0].Value) != "application/json" {
		t.Fatalf("expected header values to be copied")
	}
}

func TestPublishSyncTracksReadiness(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	client := &fakeClient{}
	p := newProducer(client, sp, time.Hour, zerolog.Nop())

	if !p.IsReady() {
		t.Fatalf("expected ready after successful metadata refresh")
	}

	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":"lead-1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	if err := p.PublishSync("leads.received", []byte("lead-1"), nil, []byte(`{"id":"lead-1"}`)); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	if err := p.PublishSync("leads.received", nil, nil, []byte("{}")); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if p.IsReady() {
		t.Fatalf("expected not ready after failed send")
	}

	if err := p.PublishSync("", nil, nil, nil); err == nil {
		t.Fatalf("expected error for empty topic")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !client.closed {
		t.Fatalf("expected client to be closed")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestNewProducerNotReadyWhenRefreshFails(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newProducer(&fakeClient{refreshErr: sarama.ErrOutOfBrokers}, sp, time.Hour, zerolog.Nop())
	defer p.Close()

	if p.IsReady() {
		t.Fatalf("expected not ready when metadata refresh fails")
	}
}
