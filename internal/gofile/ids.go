package gofile

import "github.com/google/uuid"

// ContentID identifies a piece of content on gofile. Files and owned folders
// are addressed by UUID; publicly shared folders are addressed by a short
// opaque code. The API accepts either form wherever a folder id is expected,
// so callers never have to know which one they hold.
type ContentID struct {
	uuid   uuid.UUID
	code   string
	isUUID bool
}

// ParseContentID classifies s as a UUID or a share code. Only the canonical
// 36-character dashed form counts as a UUID; everything else is passed
// through opaquely as a code.
func ParseContentID(s string) ContentID {
	if len(s) == 36 {
		if u, err := uuid.Parse(s); err == nil {
			return ContentID{uuid: u, isUUID: true}
		}
	}
	return ContentID{code: s}
}

// FromUUID wraps an already-parsed UUID.
func FromUUID(u uuid.UUID) ContentID {
	return ContentID{uuid: u, isUUID: true}
}

// IsUUID reports whether the id is in UUID form.
func (id ContentID) IsUUID() bool {
	return id.isUUID
}

func (id ContentID) String() string {
	if id.isUUID {
		return id.uuid.String()
	}
	return id.code
}
