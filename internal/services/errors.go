package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnreadableArchive   = errors.New("unreadable archive")
	ErrEmptyArchive        = errors.New("empty archive")
	ErrManifestMissing     = errors.New("manifest missing")
	ErrNoManifestEntries   = errors.New("no manifest entries")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrRequiredFileMissing = errors.New("required file missing")
	ErrExternalTool        = errors.New("external tool error")
	ErrConfiguration       = errors.New("configuration error")
	ErrTransient           = errors.New("transient failure")
)

// ErrorKind is the persisted classification of an item failure.
type ErrorKind string

const (
	KindUnreadableArchive   ErrorKind = "unreadable_archive"
	KindEmptyArchive        ErrorKind = "empty_archive"
	KindManifestMissing     ErrorKind = "manifest_missing"
	KindNoManifestEntries   ErrorKind = "no_manifest_entries"
	KindChecksumMismatch    ErrorKind = "checksum_mismatch"
	KindRequiredFileMissing ErrorKind = "required_file_missing"
	KindExternalTool        ErrorKind = "external_tool_failure"
	KindConfiguration       ErrorKind = "configuration"
	KindTransient           ErrorKind = "transient"
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrUnreadableArchive, KindUnreadableArchive},
	{ErrEmptyArchive, KindEmptyArchive},
	{ErrManifestMissing, KindManifestMissing},
	{ErrNoManifestEntries, KindNoManifestEntries},
	{ErrChecksumMismatch, KindChecksumMismatch},
	{ErrRequiredFileMissing, KindRequiredFileMissing},
	{ErrExternalTool, KindExternalTool},
	{ErrConfiguration, KindConfiguration},
	{ErrTransient, KindTransient},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// MemberError attaches the archive members responsible for a failure.
type MemberError struct {
	Err     error
	Members []string
}

func (e *MemberError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if len(e.Members) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s [%s]", e.Err.Error(), strings.Join(e.Members, ", "))
}

func (e *MemberError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithMembers annotates err with member names. A nil err stays nil.
func WithMembers(err error, members ...string) error {
	if err == nil {
		return nil
	}
	if len(members) == 0 {
		return err
	}
	cp := make([]string, len(members))
	copy(cp, members)
	return &MemberError{Err: err, Members: cp}
}

// Members returns the member names attached to err, if any.
func Members(err error) []string {
	var memberErr *MemberError
	if errors.As(err, &memberErr) && memberErr != nil {
		cp := make([]string, len(memberErr.Members))
		copy(cp, memberErr.Members)
		return cp
	}
	return nil
}

// KindOf maps err to its persisted kind. Unmarked errors are transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	return KindTransient
}

// ErrorDetails is the structured view of a stage failure used for logging and
// persistence.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Members []string
	Cause   error
}

// Details extracts the structured failure view from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Kind:    KindOf(err),
		Message: strings.TrimSpace(err.Error()),
		Members: Members(err),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
