package npc

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// signatureNamespace scopes kill signatures; changing it re-keys every observation.
var signatureNamespace = uuid.MustParse("6f1d3c52-8a4e-4f0b-9a43-4c1e2b7d9e10")

// Observation is a candidate kill event before correlation.
type Observation struct {
	GuildID    int64
	RaidID     *int64
	RawName    string
	KilledAt   time.Time
	Killer     string
	ZoneHint   string
	IsInstance *bool // nil when the source cannot tell which variant died
	Notes      string
	// SourceKey identifies the observation in its source when KilledAt is only an
	// estimate (a log line without a timestamp). It replaces KilledAt in the signature.
	SourceKey string
}

// Signature derives the idempotency key of an observation. Re-scanning the same
// log line (or polling the same game row) yields the same signature.
func (o Observation) Signature() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(o.GuildID, 10))
	b.WriteByte('|')
	if o.RaidID != nil {
		b.WriteString(strconv.FormatInt(*o.RaidID, 10))
	}
	b.WriteByte('|')
	b.WriteString(NormalizeName(o.RawName))
	b.WriteByte('|')
	if o.SourceKey != "" {
		b.WriteString("src:")
		b.WriteString(o.SourceKey)
	} else {
		b.WriteString(strconv.FormatInt(o.KilledAt.Unix(), 10))
	}
	b.WriteByte('|')
	b.WriteString(NormalizeName(o.Killer))
	return uuid.NewSHA1(signatureNamespace, []byte(b.String())).String()
}
