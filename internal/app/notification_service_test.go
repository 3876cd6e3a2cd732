package app

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
)

type notificationFixture struct {
	*store
	svc      *NotificationService
	notifier *recordingNotifier
	def      *npc.Definition
	now      time.Time
}

// newNotificationFixture tracks one NPC with a 60-120 minute window and two
// subscribers (15 and 30 minute lead times).
func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	f := &notificationFixture{store: newStore(), notifier: &recordingNotifier{}}
	f.def = f.defs.add(npc.Definition{
		GuildID:           guild,
		Name:              "Lord Nagafen",
		ZoneName:          zone("Nagafen's Lair"),
		MinRespawnMinutes: minutes(60),
		MaxRespawnMinutes: minutes(120),
	})
	for _, sub := range []npc.Subscription{
		{DefinitionID: f.def.ID, UserID: 100, NotifyMinutes: 15, Enabled: true},
		{DefinitionID: f.def.ID, UserID: 200, NotifyMinutes: 30, Enabled: true},
	} {
		sub := sub
		if err := f.subs.Upsert(context.Background(), &sub); err != nil {
			t.Fatal(err)
		}
	}
	f.svc = NewNotificationService(f.defs, f.kills, f.subs, f.states, f.notifier, testLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *notificationFixture) kill(t *testing.T, at time.Time) *npc.KillRecord {
	t.Helper()
	obs := npc.Observation{GuildID: guild, RawName: f.def.Name, KilledAt: at}
	k, created, err := f.correlator.RecordKill(context.Background(), f.def, obs, false, obs.Signature())
	if err != nil || !created {
		t.Fatalf("RecordKill() = %v, %v", created, err)
	}
	return k
}

func (f *notificationFixture) tickAt(t *testing.T, at time.Time) TickReport {
	t.Helper()
	f.now = at
	report, err := f.svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	return report
}

func TestNotificationService_AtMostOncePerCycle(t *testing.T) {
	f := newNotificationFixture(t)
	f.kill(t, killTime)

	steps := []struct {
		offset time.Duration
		want   []npc.NotificationKind
	}{
		{10 * time.Minute, nil},
		{29 * time.Minute, nil},
		{30 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching}},
		{45 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching}},
		{60 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp}},
		{90 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp}},
		{120 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp}},
		{121 * time.Minute, []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp}},
		{48 * time.Hour, []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp}},
	}
	for _, step := range steps {
		f.tickAt(t, killTime.Add(step.offset))
		if got := f.notifier.kinds(); !reflect.DeepEqual(got, step.want) && !(len(got) == 0 && len(step.want) == 0) {
			t.Fatalf("after tick at +%v delivered %v, want %v", step.offset, got, step.want)
		}
	}

	window := f.notifier.delivered[0]
	recipients := append([]int64(nil), window.Recipients...)
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	if !reflect.DeepEqual(recipients, []int64{100, 200}) {
		t.Errorf("window recipients = %v, want both subscribers", recipients)
	}
	if window.LeadMinutes != 30 {
		t.Errorf("LeadMinutes = %d, want the largest lead time 30", window.LeadMinutes)
	}
}

func TestNotificationService_NewKillStartsNewCycle(t *testing.T) {
	f := newNotificationFixture(t)
	f.kill(t, killTime)
	f.tickAt(t, killTime.Add(30*time.Minute))
	f.tickAt(t, killTime.Add(60*time.Minute))
	if got := len(f.notifier.delivered); got != 2 {
		t.Fatalf("first cycle deliveries = %d, want 2", got)
	}

	second := f.kill(t, killTime.Add(70*time.Minute))
	state, err := f.states.Get(context.Background(), second.Pair())
	if err != nil {
		t.Fatal(err)
	}
	if state.LastKillRecordID != second.ID || state.WindowNotifiedAt.Valid || state.UpNotifiedAt.Valid {
		t.Fatalf("state after new kill = %+v, want anchored to %d with flags cleared", state, second.ID)
	}

	f.tickAt(t, killTime.Add(75*time.Minute))
	if got := len(f.notifier.delivered); got != 2 {
		t.Errorf("deliveries right after new kill = %d, want 2", got)
	}
	f.tickAt(t, killTime.Add(100*time.Minute))
	f.tickAt(t, killTime.Add(130*time.Minute))
	want := []npc.NotificationKind{npc.KindWindowApproaching, npc.KindNowUp, npc.KindWindowApproaching, npc.KindNowUp}
	if got := f.notifier.kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("delivered %v, want %v", got, want)
	}
	if last := f.notifier.delivered[3]; last.KillRecordID != second.ID {
		t.Errorf("second cycle notification anchored to kill %d, want %d", last.KillRecordID, second.ID)
	}
}

func TestNotificationService_FailedDeliveryIsRetried(t *testing.T) {
	f := newNotificationFixture(t)
	k := f.kill(t, killTime)

	f.notifier.err = errSinkDown
	report := f.tickAt(t, killTime.Add(35*time.Minute))
	if report.Failed != 1 || report.Window != 0 {
		t.Errorf("report = %+v, want one failed pair", report)
	}
	state, _ := f.states.Get(context.Background(), k.Pair())
	if state.WindowNotifiedAt.Valid {
		t.Fatal("window flag set although delivery failed")
	}

	f.notifier.err = nil
	report = f.tickAt(t, killTime.Add(36*time.Minute))
	if report.Window != 1 {
		t.Errorf("retry report = %+v, want window delivered", report)
	}
	f.tickAt(t, killTime.Add(37*time.Minute))
	if got := len(f.notifier.delivered); got != 1 {
		t.Errorf("deliveries = %d, want exactly 1", got)
	}
}

func TestNotificationService_OpenWindowSendsOnlyUp(t *testing.T) {
	f := newNotificationFixture(t)
	f.kill(t, killTime)
	// The service was down for the whole pre-window period.
	f.tickAt(t, killTime.Add(70*time.Minute))
	want := []npc.NotificationKind{npc.KindNowUp}
	if got := f.notifier.kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("delivered %v, want %v", got, want)
	}
}

func TestNotificationService_NoSubscribersNoDelivery(t *testing.T) {
	f := newNotificationFixture(t)
	k := f.kill(t, killTime)
	for _, userID := range []int64{100, 200} {
		sub, err := f.subs.Get(context.Background(), f.def.ID, userID, false)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.subs.SetEnabled(context.Background(), sub.ID, false); err != nil {
			t.Fatal(err)
		}
	}
	f.tickAt(t, killTime.Add(30*time.Minute))
	f.tickAt(t, killTime.Add(60*time.Minute))
	if len(f.notifier.delivered) != 0 {
		t.Errorf("delivered %v without subscribers", f.notifier.kinds())
	}
	state, _ := f.states.Get(context.Background(), k.Pair())
	if state.WindowNotifiedAt.Valid || state.UpNotifiedAt.Valid {
		t.Errorf("flags set without a delivery: %+v", state)
	}
}

func TestNotificationService_AnchorMovedDuringEvaluation(t *testing.T) {
	f := newNotificationFixture(t)
	f.kill(t, killTime)

	var newer *npc.KillRecord
	f.states.onGet = func(npc.Pair) {
		if newer == nil {
			newer = f.kill(t, killTime.Add(5*time.Minute))
		}
	}
	// At +40 the first kill's window notification is due; the newer kill's is
	// due too (opens at +65, 30 minute lead), so exactly one goes out for it.
	f.tickAt(t, killTime.Add(40*time.Minute))
	f.states.onGet = nil

	if len(f.notifier.delivered) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(f.notifier.delivered))
	}
	if got := f.notifier.delivered[0].KillRecordID; got != newer.ID {
		t.Errorf("notification anchored to kill %d, want newer kill %d", got, newer.ID)
	}
	state, _ := f.states.Get(context.Background(), newer.Pair())
	if !state.WindowNotifiedAt.Valid || state.LastKillRecordID != newer.ID {
		t.Errorf("state = %+v, want window flag on newer kill", state)
	}
}

func TestNotificationService_ListTimers(t *testing.T) {
	f := newNotificationFixture(t)
	f.kill(t, killTime)
	f.now = killTime.Add(90 * time.Minute)

	timers, err := f.svc.ListTimers(context.Background(), guild)
	if err != nil {
		t.Fatalf("ListTimers() error = %v", err)
	}
	if len(timers) != 1 {
		t.Fatalf("timers = %d, want 1", len(timers))
	}
	tv := timers[0]
	if tv.Phase != npc.PhaseOpen {
		t.Errorf("Phase = %s, want OPEN", tv.Phase)
	}
	if !tv.Window.OpensAt.Equal(killTime.Add(time.Hour)) || !tv.Window.ClosesAt.Equal(killTime.Add(2*time.Hour)) {
		t.Errorf("Window = %+v, want 60-120 minutes after the kill", tv.Window)
	}

	other, err := f.svc.ListTimers(context.Background(), guild+1)
	if err != nil || len(other) != 0 {
		t.Errorf("ListTimers(other guild) = %v, %v; want empty", other, err)
	}
}

// staleAnchors returns the anchors as they were, then runs afterList before the
// tick gets to evaluate them.
type staleAnchors struct {
	*fakeKills
	afterList func()
}

func (s *staleAnchors) ListAnchors(ctx context.Context) ([]*npc.KillRecord, error) {
	anchors, err := s.fakeKills.ListAnchors(ctx)
	if s.afterList != nil {
		s.afterList()
		s.afterList = nil
	}
	return anchors, err
}

func TestNotificationService_StaleAnchorListDoesNotRewind(t *testing.T) {
	f := newNotificationFixture(t)
	first := f.kill(t, killTime)
	f.tickAt(t, killTime.Add(90*time.Minute))
	if got := f.notifier.kinds(); !reflect.DeepEqual(got, []npc.NotificationKind{npc.KindNowUp}) {
		t.Fatalf("first cycle deliveries = %v, want one NOW_UP", got)
	}

	var newer *npc.KillRecord
	kills := &staleAnchors{fakeKills: f.kills, afterList: func() {
		newer = f.kill(t, killTime.Add(95*time.Minute))
	}}
	svc := NewNotificationService(f.defs, kills, f.subs, f.states, f.notifier, testLogger())
	svc.now = func() time.Time { return killTime.Add(95 * time.Minute) }
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if got := f.notifier.kinds(); len(got) != 1 {
		t.Errorf("deliveries = %v, want the first NOW_UP only", got)
	}
	state, _ := f.states.Get(context.Background(), first.Pair())
	if state.LastKillRecordID != newer.ID {
		t.Errorf("anchor = %d, want newer kill %d", state.LastKillRecordID, newer.ID)
	}
	if state.WindowNotifiedAt.Valid || state.UpNotifiedAt.Valid {
		t.Errorf("state = %+v, want fresh flags for the newer kill", state)
	}
}

func TestNotificationStates_ReanchorNeverMovesBackwards(t *testing.T) {
	f := newNotificationFixture(t)
	older := f.kill(t, killTime)
	newer := f.kill(t, killTime.Add(10*time.Minute))
	ctx := context.Background()
	if _, err := f.states.MarkWindowNotified(ctx, newer.Pair(), newer.ID, killTime.Add(40*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// A slower concurrent recorder that read the older kill as latest.
	state, err := f.states.Reanchor(ctx, older.Pair(), older.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state.LastKillRecordID != newer.ID || !state.WindowNotifiedAt.Valid {
		t.Errorf("Reanchor(older) = %+v, want the newer anchor with its flag kept", state)
	}
}
