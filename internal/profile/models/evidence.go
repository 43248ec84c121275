package models

import (
	"fmt"
	"mime"
	"strings"
	"time"

	id "dossier/pkg/domain"
)

// Evidence is metadata about a file held by an external store. The bytes
// never pass through this service.
type Evidence struct {
	ID         id.EvidenceID `json:"id"`
	ItemID     id.ItemID     `json:"item_id"`
	Filename   string        `json:"filename"`
	MediaType  string        `json:"media_type"`
	Size       int64         `json:"size"`
	StorageRef string        `json:"storage_ref"`
	UploadedAt time.Time     `json:"uploaded_at"`
}

// FileUpload describes a file the client has already stored and now wants
// to attach.
type FileUpload struct {
	Filename   string `json:"filename"`
	MediaType  string `json:"media_type"`
	Size       int64  `json:"size"`
	StorageRef string `json:"storage_ref"`
}

// RejectReason explains why an upload was refused.
type RejectReason string

const (
	RejectTooLarge        RejectReason = "too_large"
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectEmpty           RejectReason = "empty_file"
	RejectMissingName     RejectReason = "missing_filename"
	RejectMissingRef      RejectReason = "missing_storage_ref"
)

// FileRejection reports one refused upload.
type FileRejection struct {
	Filename string       `json:"filename"`
	Reason   RejectReason `json:"reason"`
	Message  string       `json:"message"`
}

// RejectedFilesError is returned, wrapped with CodeFileRejected, when no
// file in a batch was accepted.
type RejectedFilesError struct {
	Rejections []FileRejection
}

func (e *RejectedFilesError) Error() string {
	names := make([]string, 0, len(e.Rejections))
	for _, r := range e.Rejections {
		names = append(names, fmt.Sprintf("%s (%s)", r.Filename, r.Reason))
	}
	return "files rejected: " + strings.Join(names, ", ")
}

// ErrorDetails exposes the rejections in error responses.
func (e *RejectedFilesError) ErrorDetails() any { return e.Rejections }

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"

	// DefaultMaxUploadBytes is 5 MiB.
	DefaultMaxUploadBytes int64 = 5 * 1024 * 1024
)

// UploadPolicy bounds what may be attached as evidence.
type UploadPolicy struct {
	MaxBytes          int64
	AllowedMediaTypes []string
}

// DefaultUploadPolicy allows PDF, JPEG and PNG files up to 5 MiB.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxBytes:          DefaultMaxUploadBytes,
		AllowedMediaTypes: []string{MediaTypePDF, MediaTypeJPEG, MediaTypePNG},
	}
}

// Check returns nil when f is acceptable, otherwise the reason it is not.
func (p UploadPolicy) Check(f FileUpload) *FileRejection {
	name := strings.TrimSpace(f.Filename)
	reject := func(reason RejectReason, msg string) *FileRejection {
		return &FileRejection{Filename: f.Filename, Reason: reason, Message: msg}
	}

	switch {
	case name == "":
		return reject(RejectMissingName, "filename is required")
	case f.Size <= 0:
		return reject(RejectEmpty, "file is empty")
	case f.Size > p.MaxBytes:
		return reject(RejectTooLarge, fmt.Sprintf("file exceeds %d bytes", p.MaxBytes))
	case !p.allows(f.MediaType):
		return reject(RejectUnsupportedType, fmt.Sprintf("media type %q is not allowed", f.MediaType))
	case strings.TrimSpace(f.StorageRef) == "":
		return reject(RejectMissingRef, "storage reference is required")
	}
	return nil
}

func (p UploadPolicy) allows(mediaType string) bool {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	for _, allowed := range p.AllowedMediaTypes {
		if strings.EqualFold(parsed, allowed) {
			return true
		}
	}
	return false
}

// NormalizeMediaType strips parameters and lowercases a media type.
func NormalizeMediaType(mediaType string) string {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return parsed
}
