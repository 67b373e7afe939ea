package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/group-acca-poc/internal/activity-worker/pubsub"
	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

// scriptReader entrega as mensagens na ordem e cancela o contexto
// quando o roteiro acaba, derrubando o Run.
type scriptReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (r *scriptReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

type captureStore struct {
	inserted []events.RoundEvent
	messages []string
	failOn   string // event type que deve falhar no insert
}

func (s *captureStore) Insert(_ context.Context, e events.RoundEvent, message string) error {
	if s.failOn != "" && e.Type == s.failOn {
		return errors.New("db down")
	}
	s.inserted = append(s.inserted, e)
	s.messages = append(s.messages, message)
	return nil
}

type captureBroadcaster struct {
	channels []string
	payloads [][]byte
}

func (b *captureBroadcaster) Publish(_ context.Context, channel string, payload []byte) error {
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	return nil
}

type captureDLQ struct {
	msgs []kafka.Message
}

func (d *captureDLQ) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func encodeEvent(t *testing.T, e events.RoundEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return kafka.Message{Key: []byte(e.RoundID), Value: b}
}

func runProcessor(t *testing.T, msgs []kafka.Message, store *captureStore, bcast *captureBroadcaster, dlq *captureDLQ) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &Processor{
		Log:     zap.NewNop(),
		Reader:  &scriptReader{msgs: msgs, cancel: cancel},
		Store:   store,
		Channel: pubsub.ChannelRoundActivity,
	}
	// ponteiro nil dentro da interface passaria no guard de nil do Run
	if bcast != nil {
		proc.Bcast = bcast
	}
	if dlq != nil {
		proc.DLQ = dlq
	}
	if err := proc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: want context.Canceled, got %v", err)
	}
}

func TestProcessorPersistsAndBroadcasts(t *testing.T) {
	created := events.RoundEvent{
		Type: events.TypeRoundCreated, RoundID: "r-1", GroupID: "g-1",
		ActorID: "admin-1", Title: "Weekend Acca", Phase: "collecting", TsUnixMs: 111,
	}
	settled := events.RoundEvent{
		Type: events.TypeRoundSettled, RoundID: "r-1", GroupID: "g-1",
		ActorID: "admin-1", Title: "Weekend Acca", Phase: "settled", Outcome: "won", TsUnixMs: 222,
	}

	store := &captureStore{}
	bcast := &captureBroadcaster{}
	runProcessor(t, []kafka.Message{encodeEvent(t, created), encodeEvent(t, settled)}, store, bcast, nil)

	if len(store.inserted) != 2 {
		t.Fatalf("want 2 inserts, got %d", len(store.inserted))
	}
	if store.inserted[1].Outcome != "won" {
		t.Fatalf("settled event lost outcome: %+v", store.inserted[1])
	}
	if !strings.Contains(store.messages[1], "settled as won") {
		t.Fatalf("settled message: %q", store.messages[1])
	}

	if len(bcast.payloads) != 2 {
		t.Fatalf("want 2 broadcasts, got %d", len(bcast.payloads))
	}
	if bcast.channels[0] != pubsub.ChannelRoundActivity {
		t.Fatalf("broadcast channel: %q", bcast.channels[0])
	}
	var update pubsub.FeedUpdate
	if err := json.Unmarshal(bcast.payloads[0], &update); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if update.GroupID != "g-1" || update.Payload.RoundID != "r-1" {
		t.Fatalf("broadcast payload: %+v", update)
	}
}

func TestProcessorRoutesBadMessagesToDLQ(t *testing.T) {
	good := events.RoundEvent{
		Type: events.TypeVotingOpened, RoundID: "r-2", GroupID: "g-1",
		Title: "Midweek Acca", Phase: "voting", TsUnixMs: 333,
	}
	bad := kafka.Message{Key: []byte("r-zzz"), Value: []byte("{not json")}

	store := &captureStore{}
	dlq := &captureDLQ{}
	runProcessor(t, []kafka.Message{bad, encodeEvent(t, good)}, store, nil, dlq)

	if len(dlq.msgs) != 1 || string(dlq.msgs[0].Key) != "r-zzz" {
		t.Fatalf("dlq: %+v", dlq.msgs)
	}
	if len(store.inserted) != 1 || store.inserted[0].RoundID != "r-2" {
		t.Fatalf("good message must still be persisted: %+v", store.inserted)
	}
}

func TestProcessorSkipsBroadcastWhenInsertFails(t *testing.T) {
	failing := events.RoundEvent{
		Type: events.TypeRoundDiscarded, RoundID: "r-3", GroupID: "g-1",
		Title: "Dud Round", TsUnixMs: 444,
	}

	store := &captureStore{failOn: events.TypeRoundDiscarded}
	bcast := &captureBroadcaster{}
	runProcessor(t, []kafka.Message{encodeEvent(t, failing)}, store, bcast, nil)

	if len(store.inserted) != 0 {
		t.Fatalf("insert should have failed: %+v", store.inserted)
	}
	if len(bcast.payloads) != 0 {
		t.Fatalf("broadcast must not run after insert failure")
	}
}

func TestRenderMessage(t *testing.T) {
	cases := []struct {
		event events.RoundEvent
		want  string
	}{
		{events.RoundEvent{Type: events.TypeRoundCreated, Title: "A"}, "A: round created, legs wanted"},
		{events.RoundEvent{Type: events.TypeVotingOpened, Title: "A"}, "A: submissions closed, voting is open"},
		{events.RoundEvent{
			Type: events.TypeRoundFinalized, Title: "A",
			SelectedLegs: []events.SelectedLeg{{SubmissionID: "s1"}, {SubmissionID: "s2"}},
			CombinedOdds: 9,
		}, "A: final acca locked in with 2 legs at 9.00"},
		{events.RoundEvent{Type: events.TypeRoundSettled, Title: "A", Outcome: "lost"}, "A: settled as lost"},
		{events.RoundEvent{Type: events.TypeRoundDiscarded, Title: "A"}, "A: round was discarded"},
		{events.RoundEvent{Type: "something_else", Title: "A"}, "A: something_else"},
	}
	for _, tc := range cases {
		if got := RenderMessage(tc.event); got != tc.want {
			t.Fatalf("RenderMessage(%s): got %q want %q", tc.event.Type, got, tc.want)
		}
	}
}
