package domain

import (
	"encoding/json"
)

// AttachmentType discriminates attachments.
type AttachmentType string

const (
	AttachmentFile  AttachmentType = "file"
	AttachmentImage AttachmentType = "image"
)

var attachmentTags = []string{string(AttachmentFile), string(AttachmentImage)}

// Attachment is a file or image uploaded alongside a user message.
type Attachment interface {
	AttachmentType() AttachmentType
	Base() AttachmentBase
	// UploadCompleted returns the attachment with its upload URL cleared.
	UploadCompleted() Attachment
	isAttachment()
}

// AttachmentBase holds the fields shared by every attachment. UploadURL is
// set only while a two-phase upload is pending.
type AttachmentBase struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	MimeType  string  `json:"mime_type"`
	UploadURL *string `json:"upload_url"`
}

type FileAttachment struct {
	AttachmentBase
}

type ImageAttachment struct {
	AttachmentBase
	PreviewURL string `json:"preview_url"`
}

func (FileAttachment) AttachmentType() AttachmentType  { return AttachmentFile }
func (ImageAttachment) AttachmentType() AttachmentType { return AttachmentImage }

func (b AttachmentBase) Base() AttachmentBase { return b }

func (a FileAttachment) UploadCompleted() Attachment {
	a.UploadURL = nil
	return a
}

func (a ImageAttachment) UploadCompleted() Attachment {
	a.UploadURL = nil
	return a
}

func (FileAttachment) isAttachment()  {}
func (ImageAttachment) isAttachment() {}

func (a FileAttachment) MarshalJSON() ([]byte, error) {
	type wire FileAttachment
	return tagged(string(AttachmentFile), wire(a))
}

func (a ImageAttachment) MarshalJSON() ([]byte, error) {
	type wire ImageAttachment
	return tagged(string(AttachmentImage), wire(a))
}

// ParseAttachment parses an attachment.
func ParseAttachment(data []byte) (Attachment, error) {
	return parseRoot("attachment", data, decodeAttachment)
}

func decodeAttachment(d *decoder, path string, raw json.RawMessage) (Attachment, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("attachment", attachmentTags)
	if !ok {
		return nil, false
	}
	base := AttachmentBase{
		ID:        o.str("id"),
		Name:      o.str("name"),
		MimeType:  o.str("mime_type"),
		UploadURL: o.optURL("upload_url"),
	}
	var a Attachment
	switch AttachmentType(tag) {
	case AttachmentFile:
		a = FileAttachment{AttachmentBase: base}
	case AttachmentImage:
		a = ImageAttachment{AttachmentBase: base, PreviewURL: o.absURL("preview_url")}
	}
	return a, len(d.errs) == n
}
