package hazard

import "fmt"

type ChangeKind uint8

const (
	KindCreated ChangeKind = iota + 1
	KindUpdated
	KindDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ChangeEvent is one create, update or delete of a hazard report, whether it
// came from the remote change feed or from a local mutation. The zero value
// is not a valid event; use Created, Updated or Deleted.
type ChangeEvent struct {
	kind   ChangeKind
	id     Identity
	record Record
}

func Created(r Record) ChangeEvent {
	return ChangeEvent{kind: KindCreated, id: r.ID, record: r.Clone()}
}

func Updated(r Record) ChangeEvent {
	return ChangeEvent{kind: KindUpdated, id: r.ID, record: r.Clone()}
}

func Deleted(id Identity) ChangeEvent {
	return ChangeEvent{kind: KindDeleted, id: id}
}

func (e ChangeEvent) Kind() ChangeKind { return e.kind }

func (e ChangeEvent) ID() Identity { return e.id }

// Record returns a copy of the payload. Deleted events carry none.
func (e ChangeEvent) Record() (Record, bool) {
	if e.kind == KindDeleted || e.kind == 0 {
		return Record{}, false
	}
	return e.record.Clone(), true
}

// SameIdentity compares events by record identity only, never by payload.
func (e ChangeEvent) SameIdentity(other ChangeEvent) bool {
	return e.id == other.id
}

func (e ChangeEvent) String() string {
	return e.kind.String() + "(" + string(e.id) + ")"
}

// ChangeReason is why the remote feed reported an identity.
type ChangeReason string

const (
	ReasonCreated ChangeReason = "created"
	ReasonUpdated ChangeReason = "updated"
	ReasonDeleted ChangeReason = "deleted"
)

func ParseChangeReason(raw string) (ChangeReason, error) {
	reason := ChangeReason(raw)
	switch reason {
	case ReasonCreated, ReasonUpdated, ReasonDeleted:
		return reason, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, raw)
	}
}

// ChangeNotice is one entry of the remote change feed.
type ChangeNotice struct {
	ID     Identity
	Reason ChangeReason
}

// Token is the remote feed's resumption cursor. It is opaque: not
// comparable, not orderable. An empty token means "from the beginning".
type Token []byte

func (t Token) IsEmpty() bool { return len(t) == 0 }

func (t Token) Clone() Token {
	if t == nil {
		return nil
	}
	return append(Token(nil), t...)
}
