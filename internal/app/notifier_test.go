package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"npc_respawn_tracker/internal/domain/npc"
)

func TestFanOutNotifier_Deliver(t *testing.T) {
	n := npc.Notification{Kind: npc.KindNowUp, DefinitionID: 1, Recipients: []int64{100}}

	tests := []struct {
		name    string
		errs    []error // one sink per entry; nil means the sink works
		wantErr bool
	}{
		{name: "no sinks"},
		{name: "all succeed", errs: []error{nil, nil}},
		{name: "one of two fails", errs: []error{errSinkDown, nil}},
		{name: "all fail", errs: []error{errSinkDown, errors.New("timeout")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sinks []NamedNotifier
			var recorders []*recordingNotifier
			for i, err := range tt.errs {
				r := &recordingNotifier{err: err}
				recorders = append(recorders, r)
				sinks = append(sinks, NamedNotifier{Name: string(rune('a' + i)), Notifier: r})
			}
			f := NewFanOutNotifier(testLogger(), sinks...)
			if f.Len() != len(tt.errs) {
				t.Errorf("Len() = %d, want %d", f.Len(), len(tt.errs))
			}

			err := f.Deliver(context.Background(), n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errSinkDown) {
				t.Errorf("Deliver() error = %v, want it to wrap every sink error", err)
			}
			for i, r := range recorders {
				if tt.errs[i] == nil && !reflect.DeepEqual(r.kinds(), []npc.NotificationKind{npc.KindNowUp}) {
					t.Errorf("sink %d delivered %v, want the notification once", i, r.kinds())
				}
			}
		})
	}
}

type orderRecorder struct {
	name  string
	order *[]string
	err   error
}

func (o orderRecorder) Stop() { *o.order = append(*o.order, o.name) }

func (o orderRecorder) Close() error {
	*o.order = append(*o.order, o.name)
	return o.err
}

func TestShutdown_Order(t *testing.T) {
	var order []string
	err := Shutdown(testLogger(),
		[]Stopper{orderRecorder{name: "bot", order: &order}, orderRecorder{name: "poller", order: &order}},
		orderRecorder{name: "game_pool", order: &order, err: errSinkDown},
		orderRecorder{name: "postgres", order: &order},
	)
	want := []string{"bot", "poller", "game_pool", "postgres"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("shutdown order = %v, want %v", order, want)
	}
	if !errors.Is(err, errSinkDown) {
		t.Errorf("Shutdown() error = %v, want the pool close error", err)
	}
}
