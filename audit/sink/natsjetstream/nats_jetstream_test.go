package natsjetstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"auditor/audit"
	"auditor/logging"
)

type fakeJetStream struct {
	published []*nats.Msg
	streams   map[string]*nats.StreamConfig
	infoErr   error
	pubErr    error
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published = append(f.published, m)
	return &nats.PubAck{Stream: "AUDITOR", Sequence: uint64(len(f.published))}, nil
}

func (f *fakeJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if cfg, ok := f.streams[stream]; ok {
		return &nats.StreamInfo{Config: *cfg}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.streams == nil {
		f.streams = make(map[string]*nats.StreamConfig)
	}
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func openSink(t *testing.T, cfg Config, js *fakeJetStream) *Sink {
	t.Helper()
	cfg.Logger = logging.NewNoopLogger()
	sink := NewSink(cfg)
	sink.js = js
	require.NoError(t, sink.Open(context.Background()))
	return sink
}

func TestOpen_CreatesStream(t *testing.T) {
	js := &fakeJetStream{}
	openSink(t, Config{}, js)

	sc := js.streams["AUDITOR"]
	require.NotNil(t, sc)
	require.Equal(t, []string{"audit.>"}, sc.Subjects)
	require.Equal(t, nats.LimitsPolicy, sc.Retention)
}

func TestOpen_KeepsExistingStream(t *testing.T) {
	existing := &nats.StreamConfig{Name: "AUDIT", Subjects: []string{"trail.>"}, Retention: nats.InterestPolicy}
	js := &fakeJetStream{streams: map[string]*nats.StreamConfig{"AUDIT": existing}}
	openSink(t, Config{Stream: "AUDIT", SubjectPrefix: "trail"}, js)
	require.Same(t, existing, js.streams["AUDIT"])
}

func TestOpen_PropagatesStreamInfoError(t *testing.T) {
	js := &fakeJetStream{infoErr: errors.New("permissions violation")}
	sink := NewSink(Config{Logger: logging.NewNoopLogger()})
	sink.js = js
	require.Error(t, sink.Open(context.Background()))
}

func TestForward_PublishesPerKindSubject(t *testing.T) {
	js := &fakeJetStream{}
	sink := openSink(t, Config{}, js)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []*audit.AuditRecord{
		{ID: "rec-1", Kind: audit.KindAdded, StartTimeUTC: start, EndTimeUTC: start, Succeeded: true},
		{ID: "rec-2", Kind: audit.KindDeleted, StartTimeUTC: start, EndTimeUTC: start, Succeeded: true},
	}
	require.NoError(t, sink.Forward(context.Background(), records))
	require.Len(t, js.published, 2)

	first := js.published[0]
	require.Equal(t, "audit.added", first.Subject)
	require.Equal(t, "rec-1", first.Header.Get(nats.MsgIdHdr))
	require.Equal(t, "Added", first.Header.Get("Audit-Kind"))
	require.Equal(t, "audit.deleted", js.published[1].Subject)

	var decoded audit.AuditRecord
	require.NoError(t, json.Unmarshal(first.Data, &decoded))
	require.Equal(t, "rec-1", decoded.ID)
	require.True(t, decoded.StartTimeUTC.Equal(start))
}

func TestForward_Errors(t *testing.T) {
	closed := NewSink(Config{Logger: logging.NewNoopLogger()})
	require.Error(t, closed.Forward(context.Background(), nil))

	js := &fakeJetStream{}
	sink := openSink(t, Config{}, js)
	js.pubErr = nats.ErrNoResponders
	err := sink.Forward(context.Background(), []*audit.AuditRecord{{ID: "rec-1", Kind: audit.KindAdded}})
	require.ErrorIs(t, err, nats.ErrNoResponders)

	require.NoError(t, sink.Close())
	require.Error(t, sink.Forward(context.Background(), nil))
}
