package gofile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Response envelope statuses. Anything else is carried through as an
// APIError with the status string preserved.
const (
	statusOK         = "ok"
	statusSuccess    = "success" // used by the bypass service
	statusNotFound   = "error-notFound"
	statusRateLimit  = "error-rateLimit"
	statusToken      = "error-token"
	statusNotPremium = "error-notPremium"
)

// Password states a folder reply may carry alongside its payload.
const (
	passwordRequired = "passwordRequired"
	passwordWrong    = "passwordWrong"
)

// Content type discriminators.
const (
	typeFile   = "file"
	typeFolder = "folder"
)

// decodeEnvelope unwraps a {"status": S, "data": D} reply, mapping error
// statuses onto the package error set and returning the raw data payload on
// success. A reply without a status field is malformed.
func decodeEnvelope(body []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("gofile: response is not valid JSON")
	}
	status := gjson.GetBytes(body, "status")
	if !status.Exists() || status.Type != gjson.String {
		return nil, errors.New("gofile: response has no status field")
	}
	switch status.String() {
	case statusOK, statusSuccess:
		data := gjson.GetBytes(body, "data")
		if !data.Exists() {
			return nil, errors.New("gofile: ok response has no data field")
		}
		return json.RawMessage(data.Raw), nil
	case statusNotFound:
		return nil, ErrNotFound
	case statusRateLimit, statusToken, statusNotPremium:
		return nil, &APIError{Status: status.String()}
	default:
		return nil, &APIError{Status: status.String()}
	}
}

// Entry is a single piece of gofile content: either a *FileEntry or a
// *FolderEntry. Callers type-switch on the concrete type.
type Entry interface {
	IsDir() bool
}

// FileEntry is a file as returned inside a contents reply.
type FileEntry struct {
	CanAccess    bool      `json:"canAccess"`
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CreateTime   int64     `json:"createTime"`
	ModTime      int64     `json:"modTime"`
	Size         uint64    `json:"size"`
	MD5          string    `json:"md5"`
	Link         string    `json:"link"`
	ParentFolder string    `json:"parentFolder"`
	Password     bool      `json:"password"`
	IsFrozen     bool      `json:"isFrozen"`
	Mimetype     string    `json:"mimetype"`
	Servers      []string  `json:"servers"`

	// Bypassed is set by the bypass rewrite, never by the API: when true,
	// Link points at the proxy and download requests must not carry the
	// bearer token.
	Bypassed bool `json:"-"`
}

// IsDir implements Entry.
func (*FileEntry) IsDir() bool { return false }

// FolderEntry is a folder as returned inside a contents reply. Children are
// keyed by the child's content id and hold one level only; folder children
// always have empty Children maps.
type FolderEntry struct {
	CanAccess    bool      `json:"canAccess"`
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CreateTime   int64     `json:"createTime"`
	ModTime      int64     `json:"modTime"`
	TotalSize    uint64    `json:"totalSize"`
	Code         string    `json:"code"`
	Public       bool      `json:"public"`
	ParentFolder string    `json:"parentFolder"`
	Password     bool      `json:"password"`
	IsOwner      bool      `json:"isOwner"`

	Children map[string]Entry `json:"-"`
}

// IsDir implements Entry.
func (*FolderEntry) IsDir() bool { return true }

// Restricted is the stub the API returns in place of password-gated content.
// It carries identity but no children and no download link.
type Restricted struct {
	PasswordStatus string    `json:"passwordStatus"`
	CanAccess      bool      `json:"canAccess"`
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	CreateTime     int64     `json:"createTime"`
	ModTime        int64     `json:"modTime"`
	Folder         bool      `json:"-"`
}

// Err converts the password status into the matching sentinel error.
func (r *Restricted) Err() error {
	if r.PasswordStatus == passwordWrong {
		return ErrPasswordWrong
	}
	return ErrPasswordRequired
}

// contentsReply is one decoded element of a contents payload: exactly one of
// entry or restricted is set. For folders, rawChildren preserves the child
// payloads so the caller can apply per-child password handling.
type contentsReply struct {
	entry       Entry
	restricted  *Restricted
	rawChildren map[string]json.RawMessage
}

// decodeContentsReply decodes a single content payload, discriminating first
// on passwordStatus, then on type. It handles the full square of
// file/folder x accessible/restricted.
func decodeContentsReply(raw []byte) (contentsReply, error) {
	ps := gjson.GetBytes(raw, "passwordStatus").String()
	if ps == passwordRequired || ps == passwordWrong {
		var r Restricted
		if err := json.Unmarshal(raw, &r); err != nil {
			return contentsReply{}, fmt.Errorf("gofile: decoding restricted content: %w", err)
		}
		r.Folder = gjson.GetBytes(raw, "type").String() == typeFolder
		return contentsReply{restricted: &r}, nil
	}

	switch typ := gjson.GetBytes(raw, "type").String(); typ {
	case typeFile:
		var f FileEntry
		if err := json.Unmarshal(raw, &f); err != nil {
			return contentsReply{}, fmt.Errorf("gofile: decoding file entry: %w", err)
		}
		return contentsReply{entry: &f}, nil
	case typeFolder:
		var payload struct {
			FolderEntry
			Children map[string]json.RawMessage `json:"children"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return contentsReply{}, fmt.Errorf("gofile: decoding folder entry: %w", err)
		}
		folder := payload.FolderEntry
		folder.Children = make(map[string]Entry)
		return contentsReply{entry: &folder, rawChildren: payload.Children}, nil
	default:
		return contentsReply{}, fmt.Errorf("gofile: content has unknown type %q", typ)
	}
}

// AccountInfo is the current account as returned by GET /accounts/website.
type AccountInfo struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Tier       string    `json:"tier"`
	Token      string    `json:"token"`
	RootFolder uuid.UUID `json:"rootFolder"`
}

// GuestAccount is the result of creating an anonymous account.
type GuestAccount struct {
	ID         string    `json:"id"`
	Tier       string    `json:"tier"`
	Token      string    `json:"token"`
	RootFolder uuid.UUID `json:"rootFolder"`
}

// FolderCreated is the result of POST /contents/createfolder.
type FolderCreated struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	ParentFolder uuid.UUID `json:"parentFolder"`
	CreateTime   int64     `json:"createTime"`
	ModTime      int64     `json:"modTime"`
	Type         string    `json:"type"`
}

// FileUploaded is the result of a multipart upload.
type FileUploaded struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	MD5          string    `json:"md5"`
	Mimetype     string    `json:"mimetype"`
	Size         uint64    `json:"size"`
	CreateTime   int64     `json:"createTime"`
	ModTime      int64     `json:"modTime"`
	ParentFolder string    `json:"parentFolder"`
	DownloadPage string    `json:"downloadPage"`
	Servers      []string  `json:"servers"`
	Type         string    `json:"type"`
}

// createFolderRequest is the JSON body of POST /contents/createfolder.
type createFolderRequest struct {
	FolderName     string `json:"folderName"`
	ParentFolderID string `json:"parentFolderId"`
}

// updateAttributeRequest is the JSON body of PUT /contents/{id}/update.
type updateAttributeRequest struct {
	Attribute      string `json:"attribute"`
	AttributeValue string `json:"attributeValue"`
}

// deleteContentsRequest is the JSON body of DELETE /contents. ContentsID is
// a comma-separated id list.
type deleteContentsRequest struct {
	ContentsID string `json:"contentsId"`
}

// DeleteResult is the per-id outcome of a batch delete.
type DeleteResult struct {
	Status string `json:"status"`
}

// Err returns nil when the individual deletion succeeded.
func (r DeleteResult) Err() error {
	if r.Status == statusOK || r.Status == statusSuccess {
		return nil
	}
	return &APIError{Status: r.Status}
}

// BypassFile is one entry of the bypass service's folder listing. Link is
// the regular download URL, ProxyLink the rate-limit-free alternative.
type BypassFile struct {
	Name      string `json:"name"`
	Size      uint64 `json:"size"`
	Link      string `json:"link"`
	ProxyLink string `json:"proxy_link"`
}
