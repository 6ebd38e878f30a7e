package hazard

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the stable key of a hazard report. The remote store assigns
// it on first write and never reuses it.
type Identity string

func ParseIdentity(raw string) (Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrIdentityRequired
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, raw)
	}
	return Identity(parsed.String()), nil
}

func (id Identity) String() string { return string(id) }

type GeoPoint struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
}

func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidLocation, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidLocation, p.Longitude)
	}
	if p.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy %v", ErrInvalidLocation, p.AccuracyMeters)
	}
	return nil
}

// AssetRef points at a photo held by the remote blob store.
type AssetRef struct {
	Key         string
	ContentType string
}

// RemoteRecordHandle is the remote store's system metadata for a record.
// It is carried unchanged and handed back on every write; nothing outside
// the remote adapter looks inside.
type RemoteRecordHandle []byte

func (h RemoteRecordHandle) IsZero() bool { return len(h) == 0 }

type Record struct {
	ID          Identity
	Description string
	Location    *GeoPoint
	Photo       *AssetRef
	IsEmergency bool
	IsResolved  bool
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Handle      RemoteRecordHandle
}

// Clone returns a deep copy so events and snapshots never share mutable state.
func (r Record) Clone() Record {
	out := r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.Photo != nil {
		photo := *r.Photo
		out.Photo = &photo
	}
	if r.Handle != nil {
		out.Handle = append(RemoteRecordHandle(nil), r.Handle...)
	}
	return out
}

// ValidateContent checks the user-editable fields.
func (r Record) ValidateContent() error {
	if strings.TrimSpace(r.Description) == "" {
		return ErrDescriptionRequired
	}
	if r.Location != nil {
		if err := r.Location.Validate(); err != nil {
			return err
		}
	}
	if r.Photo != nil && strings.TrimSpace(r.Photo.Key) == "" {
		return ErrPhotoKeyRequired
	}
	return nil
}

// Resolution closes a report. It is written in the same remote batch that
// marks the owning report resolved.
type Resolution struct {
	Description     string
	StaffMemberName string
	Owner           Identity
}

func (r Resolution) Validate() error {
	if strings.TrimSpace(r.Owner.String()) == "" {
		return ErrIdentityRequired
	}
	if strings.TrimSpace(r.StaffMemberName) == "" {
		return ErrStaffMemberRequired
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrResolutionDescriptionRequired
	}
	return nil
}
