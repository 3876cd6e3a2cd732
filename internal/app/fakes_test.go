package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// In-memory stand-ins for the Postgres repositories. They honour the same
// uniqueness rules and sentinel errors so service logic can be tested in isolation.

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeDefinitions struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]npc.Definition
}

func newFakeDefinitions() *fakeDefinitions {
	return &fakeDefinitions{rows: make(map[int64]npc.Definition)}
}

// add stores a definition directly, bypassing service validation.
func (f *fakeDefinitions) add(d npc.Definition) *npc.Definition {
	if err := f.Create(context.Background(), &d); err != nil {
		panic(err)
	}
	return &d
}

func (f *fakeDefinitions) Create(ctx context.Context, d *npc.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.NormalizedName = npc.NormalizeName(d.Name)
	for _, row := range f.rows {
		if row.GuildID == d.GuildID && row.NormalizedName == d.NormalizedName && row.NormalizedZone() == d.NormalizedZone() {
			return idb.ErrDuplicateDefinition
		}
	}
	f.nextID++
	d.ID = f.nextID
	f.rows[d.ID] = *d
	return nil
}

func (f *fakeDefinitions) GetByID(ctx context.Context, id int64) (*npc.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, idb.ErrDefinitionNotFound
	}
	return &row, nil
}

func (f *fakeDefinitions) ListByNormalizedName(ctx context.Context, guildID int64, normalizedName string) ([]*npc.Definition, error) {
	return f.list(func(d npc.Definition) bool { return d.GuildID == guildID && d.NormalizedName == normalizedName }), nil
}

func (f *fakeDefinitions) ListByGuild(ctx context.Context, guildID int64) ([]*npc.Definition, error) {
	return f.list(func(d npc.Definition) bool { return d.GuildID == guildID }), nil
}

func (f *fakeDefinitions) list(keep func(npc.Definition) bool) []*npc.Definition {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*npc.Definition
	for _, row := range f.rows {
		if keep(row) {
			row := row
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeDefinitions) Update(ctx context.Context, d *npc.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[d.ID]; !ok {
		return idb.ErrDefinitionNotFound
	}
	d.NormalizedName = npc.NormalizeName(d.Name)
	f.rows[d.ID] = *d
	return nil
}

func (f *fakeDefinitions) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return idb.ErrDefinitionNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeKills struct {
	mu     sync.Mutex
	nextID int64
	rows   []npc.KillRecord
}

func newFakeKills() *fakeKills { return &fakeKills{} }

func (f *fakeKills) Create(ctx context.Context, k *npc.KillRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.GuildID == k.GuildID && row.LogSignature == k.LogSignature {
			return false, nil
		}
	}
	f.nextID++
	k.ID = f.nextID
	k.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, *k)
	return true, nil
}

func (f *fakeKills) GetByID(ctx context.Context, id int64) (*npc.KillRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return &row, nil
		}
	}
	return nil, idb.ErrKillRecordNotFound
}

func (f *fakeKills) ExistsBySignature(ctx context.Context, guildID int64, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.GuildID == guildID && row.LogSignature == signature {
			return true, nil
		}
	}
	return false, nil
}

func laterKill(a, b npc.KillRecord) bool {
	if !a.KilledAt.Equal(b.KilledAt) {
		return a.KilledAt.After(b.KilledAt)
	}
	return a.ID > b.ID
}

// later reports whether kill a is later than kill b. An unknown b counts as older.
func (f *fakeKills) later(a, b int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ka, kb *npc.KillRecord
	for i := range f.rows {
		switch f.rows[i].ID {
		case a:
			ka = &f.rows[i]
		case b:
			kb = &f.rows[i]
		}
	}
	if kb == nil {
		return true
	}
	return ka != nil && laterKill(*ka, *kb)
}

func (f *fakeKills) LatestForPair(ctx context.Context, pair npc.Pair) (*npc.KillRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *npc.KillRecord
	for _, row := range f.rows {
		if row.Pair() != pair {
			continue
		}
		if best == nil || laterKill(row, *best) {
			row := row
			best = &row
		}
	}
	if best == nil {
		return nil, idb.ErrKillRecordNotFound
	}
	return best, nil
}

func (f *fakeKills) anchors(keep func(npc.KillRecord) bool) []*npc.KillRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	best := make(map[npc.Pair]npc.KillRecord)
	for _, row := range f.rows {
		if !keep(row) {
			continue
		}
		if cur, ok := best[row.Pair()]; !ok || laterKill(row, cur) {
			best[row.Pair()] = row
		}
	}
	out := make([]*npc.KillRecord, 0, len(best))
	for _, row := range best {
		row := row
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DefinitionID != out[j].DefinitionID {
			return out[i].DefinitionID < out[j].DefinitionID
		}
		return !out[i].IsInstance && out[j].IsInstance
	})
	return out
}

func (f *fakeKills) ListAnchors(ctx context.Context) ([]*npc.KillRecord, error) {
	return f.anchors(func(npc.KillRecord) bool { return true }), nil
}

func (f *fakeKills) ListAnchorsByGuild(ctx context.Context, guildID int64) ([]*npc.KillRecord, error) {
	return f.anchors(func(k npc.KillRecord) bool { return k.GuildID == guildID }), nil
}

func (f *fakeKills) ListByDefinition(ctx context.Context, definitionID int64, limit int) ([]*npc.KillRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*npc.KillRecord
	for _, row := range f.rows {
		if row.DefinitionID == definitionID {
			row := row
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return laterKill(*out[i], *out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeKills) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeClarifications struct {
	mu     sync.Mutex
	nextID int64
	rows   []*npc.PendingClarification
}

func newFakeClarifications() *fakeClarifications { return &fakeClarifications{} }

func cloneClarification(c *npc.PendingClarification) *npc.PendingClarification {
	out := *c
	if c.Resolution != nil {
		res := *c.Resolution
		out.Resolution = &res
	}
	out.ZoneOptions = append([]string(nil), c.ZoneOptions...)
	return &out
}

func (f *fakeClarifications) Create(ctx context.Context, c *npc.PendingClarification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.GuildID == c.GuildID && row.LogSignature == c.LogSignature {
			return false, nil
		}
	}
	f.nextID++
	c.ID = f.nextID
	f.rows = append(f.rows, cloneClarification(c))
	return true, nil
}

func (f *fakeClarifications) GetByID(ctx context.Context, id int64) (*npc.PendingClarification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return cloneClarification(row), nil
		}
	}
	return nil, idb.ErrClarificationNotFound
}

func (f *fakeClarifications) GetBySignature(ctx context.Context, guildID int64, signature string) (*npc.PendingClarification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.GuildID == guildID && row.LogSignature == signature {
			return cloneClarification(row), nil
		}
	}
	return nil, idb.ErrClarificationNotFound
}

func (f *fakeClarifications) ListLive(ctx context.Context, guildID int64) ([]*npc.PendingClarification, error) {
	return f.live(func(c *npc.PendingClarification) bool { return c.GuildID == guildID }), nil
}

func (f *fakeClarifications) ListLiveByName(ctx context.Context, guildID int64, normalizedName string) ([]*npc.PendingClarification, error) {
	return f.live(func(c *npc.PendingClarification) bool {
		return c.GuildID == guildID && c.NormalizedName == normalizedName
	}), nil
}

func (f *fakeClarifications) live(keep func(*npc.PendingClarification) bool) []*npc.PendingClarification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*npc.PendingClarification
	for _, row := range f.rows {
		if row.IsLive() && keep(row) {
			out = append(out, cloneClarification(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KilledAt.Before(out[j].KilledAt) })
	return out
}

func (f *fakeClarifications) Resolve(ctx context.Context, id int64, res npc.Resolution) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID != id {
			continue
		}
		if !row.IsLive() {
			return false, nil
		}
		row.Resolution = &res
		return true, nil
	}
	return false, nil
}

type fakeSubscriptions struct {
	mu     sync.Mutex
	nextID int64
	rows   []*npc.Subscription
}

func newFakeSubscriptions() *fakeSubscriptions { return &fakeSubscriptions{} }

func (f *fakeSubscriptions) Upsert(ctx context.Context, s *npc.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.DefinitionID == s.DefinitionID && row.UserID == s.UserID && row.IsInstance == s.IsInstance {
			row.NotifyMinutes = s.NotifyMinutes
			row.Enabled = s.Enabled
			s.ID = row.ID
			return nil
		}
	}
	f.nextID++
	s.ID = f.nextID
	row := *s
	f.rows = append(f.rows, &row)
	return nil
}

func (f *fakeSubscriptions) Get(ctx context.Context, definitionID, userID int64, isInstance bool) (*npc.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.DefinitionID == definitionID && row.UserID == userID && row.IsInstance == isInstance {
			out := *row
			return &out, nil
		}
	}
	return nil, idb.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) ListEnabledByPair(ctx context.Context, pair npc.Pair) ([]*npc.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*npc.Subscription
	for _, row := range f.rows {
		if row.Enabled && row.DefinitionID == pair.DefinitionID && row.IsInstance == pair.IsInstance {
			r := *row
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) ListByUser(ctx context.Context, userID int64) ([]*npc.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*npc.Subscription
	for _, row := range f.rows {
		if row.UserID == userID {
			r := *row
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.Enabled = enabled
			return nil
		}
	}
	return idb.ErrSubscriptionNotFound
}

type fakeNotificationStates struct {
	mu    sync.Mutex
	rows  map[npc.Pair]*npc.NotificationState
	kills *fakeKills // Orders anchors; Reanchor never moves backwards
	// onGet runs before Get returns; tests use it to move the anchor mid-evaluation.
	onGet func(pair npc.Pair)
}

func newFakeNotificationStates(kills *fakeKills) *fakeNotificationStates {
	return &fakeNotificationStates{rows: make(map[npc.Pair]*npc.NotificationState), kills: kills}
}

func (f *fakeNotificationStates) Get(ctx context.Context, pair npc.Pair) (*npc.NotificationState, error) {
	if f.onGet != nil {
		f.onGet(pair)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[pair]
	if !ok {
		return nil, idb.ErrNotificationStateNotFound
	}
	out := *row
	return &out, nil
}

func (f *fakeNotificationStates) Reanchor(ctx context.Context, pair npc.Pair, killID int64) (*npc.NotificationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[pair]
	if !ok {
		row = &npc.NotificationState{DefinitionID: pair.DefinitionID, IsInstance: pair.IsInstance}
		f.rows[pair] = row
	}
	if !ok || (row.LastKillRecordID != killID && f.kills.later(killID, row.LastKillRecordID)) {
		row.LastKillRecordID = killID
		row.WindowNotifiedAt = sql.NullTime{}
		row.UpNotifiedAt = sql.NullTime{}
	}
	out := *row
	return &out, nil
}

func (f *fakeNotificationStates) MarkWindowNotified(ctx context.Context, pair npc.Pair, killID int64, at time.Time) (bool, error) {
	return f.mark(pair, killID, func(s *npc.NotificationState) *sql.NullTime { return &s.WindowNotifiedAt }, at)
}

func (f *fakeNotificationStates) MarkUpNotified(ctx context.Context, pair npc.Pair, killID int64, at time.Time) (bool, error) {
	return f.mark(pair, killID, func(s *npc.NotificationState) *sql.NullTime { return &s.UpNotifiedAt }, at)
}

func (f *fakeNotificationStates) mark(pair npc.Pair, killID int64, field func(*npc.NotificationState) *sql.NullTime, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[pair]
	if !ok || row.LastKillRecordID != killID || field(row).Valid {
		return false, nil
	}
	*field(row) = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

// recordingNotifier captures deliveries and can be told to fail.
type recordingNotifier struct {
	mu        sync.Mutex
	delivered []npc.Notification
	err       error
}

func (r *recordingNotifier) Deliver(ctx context.Context, n npc.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.delivered = append(r.delivered, n)
	return nil
}

func (r *recordingNotifier) kinds() []npc.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]npc.NotificationKind, 0, len(r.delivered))
	for _, n := range r.delivered {
		out = append(out, n.Kind)
	}
	return out
}

var errSinkDown = errors.New("sink down")

// store bundles one set of fakes with the services built on them.
type store struct {
	defs           *fakeDefinitions
	kills          *fakeKills
	clarifications *fakeClarifications
	subs           *fakeSubscriptions
	states         *fakeNotificationStates
	correlator     *KillCorrelator
}

func newStore() *store {
	s := &store{
		defs:           newFakeDefinitions(),
		kills:          newFakeKills(),
		clarifications: newFakeClarifications(),
		subs:           newFakeSubscriptions(),
	}
	s.states = newFakeNotificationStates(s.kills)
	s.correlator = NewKillCorrelator(s.defs, s.kills, s.clarifications, s.states, testLogger())
	return s
}

func minutes(n int32) sql.NullInt32 { return sql.NullInt32{Int32: n, Valid: true} }

func zone(name string) sql.NullString { return sql.NullString{String: name, Valid: true} }

func boolPtr(v bool) *bool { return &v }
