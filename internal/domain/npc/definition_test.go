package npc

import (
	"database/sql"
	"testing"
	"time"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Lord Nagafen", "lord nagafen"},
		{"  LORD\t  Nagafen ", "lord nagafen"},
		{"#Lord_Nagafen", "lord nagafen"},
		{"a_fire_beetle", "a fire beetle"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefinition_ValidRespawnRange(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want bool
	}{
		{"unset", Definition{}, true},
		{"min only", Definition{MinRespawnMinutes: minutes(30)}, true},
		{"equal bounds", Definition{MinRespawnMinutes: minutes(30), MaxRespawnMinutes: minutes(30)}, true},
		{"max below min", Definition{MinRespawnMinutes: minutes(45), MaxRespawnMinutes: minutes(30)}, false},
		{"negative", Definition{MaxRespawnMinutes: minutes(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.ValidRespawnRange(); got != tt.want {
				t.Errorf("ValidRespawnRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObservation_Signature(t *testing.T) {
	raid := int64(9)
	base := Observation{
		GuildID:  1,
		RawName:  "Lord Nagafen",
		KilledAt: time.Date(2024, 3, 1, 20, 15, 0, 0, time.UTC),
		Killer:   "Aradune",
	}
	sig := base.Signature()

	same := base
	same.RawName = "#Lord_Nagafen"
	same.ZoneHint = "soldungb"
	same.KilledAt = base.KilledAt.Add(300 * time.Millisecond)
	if same.Signature() != sig {
		t.Error("signature changed with name spelling, zone hint or sub-second time")
	}

	keyed := base
	keyed.SourceKey = "Lord Nagafen has been slain by Aradune!#1"
	moved := keyed
	moved.KilledAt = base.KilledAt.Add(time.Hour)
	if keyed.Signature() == sig || moved.Signature() != keyed.Signature() {
		t.Error("a source key must replace the kill time in the signature")
	}

	for name, change := range map[string]func(*Observation){
		"guild":  func(o *Observation) { o.GuildID = 2 },
		"raid":   func(o *Observation) { o.RaidID = &raid },
		"time":   func(o *Observation) { o.KilledAt = o.KilledAt.Add(time.Second) },
		"killer": func(o *Observation) { o.Killer = "Firiona" },
	} {
		o := base
		change(&o)
		if o.Signature() == sig {
			t.Errorf("changing %s kept the signature", name)
		}
	}
}

func TestPendingClarification_ObservationKeepsSignature(t *testing.T) {
	inst := true
	raid := int64(3)
	obs := Observation{
		GuildID:    1,
		RaidID:     &raid,
		RawName:    "Trakanon",
		KilledAt:   time.Date(2024, 3, 1, 20, 15, 0, 0, time.UTC),
		Killer:     "Aradune",
		IsInstance: &inst,
	}
	c := &PendingClarification{
		GuildID:      obs.GuildID,
		RaidID:       sql.NullInt64{Int64: raid, Valid: true},
		RawName:      obs.RawName,
		KilledAt:     obs.KilledAt,
		KillerName:   sql.NullString{String: obs.Killer, Valid: true},
		InstanceHint: sql.NullBool{Bool: true, Valid: true},
	}
	rebuilt := c.Observation()
	if rebuilt.Signature() != obs.Signature() {
		t.Error("rebuilt observation has a different signature")
	}
	if rebuilt.IsInstance == nil || !*rebuilt.IsInstance {
		t.Errorf("IsInstance = %v, want true", rebuilt.IsInstance)
	}
	if c.State() != StateLive {
		t.Errorf("State() = %v, want live", c.State())
	}
	c.Resolution = &Resolution{ByID: 42, Outcome: OutcomeDismissed}
	if c.IsLive() {
		t.Error("resolved clarification reported live")
	}
}
