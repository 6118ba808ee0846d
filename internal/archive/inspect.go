package archive

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"sieve/internal/services"
)

// Member is one regular file inside an archive.
type Member struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Handle is the immutable structural description of an archive.
type Handle struct {
	Path    string   `json:"path"`
	Codec   Codec    `json:"codec"`
	Members []Member `json:"members"`
	// Depth is the number of path separators in the first real member.
	Depth int    `json:"depth"`
	RunID string `json:"run_id"`
	// Ignored counts transient members filtered out of Members.
	Ignored int `json:"ignored"`
}

// Inspector lists archive members and infers the layout conventions.
type Inspector struct {
	transientSuffixes []string
}

// NewInspector returns an inspector that treats members ending in any of
// transientSuffixes (and AppleDouble "._" files) as transient markers.
func NewInspector(transientSuffixes []string) *Inspector {
	cp := make([]string, len(transientSuffixes))
	for i, suffix := range transientSuffixes {
		cp[i] = strings.ToLower(suffix)
	}
	return &Inspector{transientSuffixes: cp}
}

// IsTransient reports whether member is a transfer marker or temporary file.
func (i *Inspector) IsTransient(member string) bool {
	base := path.Base(member)
	if strings.HasPrefix(base, "._") {
		return true
	}
	lower := strings.ToLower(base)
	for _, suffix := range i.transientSuffixes {
		if suffix != "" && strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Inspect lists members of the archive at location without writing to disk.
func (i *Inspector) Inspect(ctx context.Context, location string) (Handle, error) {
	reader, err := Open(location)
	if err != nil {
		return Handle{}, err
	}
	defer reader.Close()

	handle := Handle{Path: location, Codec: reader.Codec}
	for {
		if err := ctx.Err(); err != nil {
			return Handle{}, err
		}
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Handle{}, wrapNextError(location, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		name := normalizeMemberName(hdr.Name)
		if i.IsTransient(name) {
			handle.Ignored++
			continue
		}
		handle.Members = append(handle.Members, Member{Name: name, Size: hdr.Size})
	}

	if len(handle.Members) == 0 {
		return Handle{}, services.Wrap(services.ErrEmptyArchive, "archive", "inspect", location, nil)
	}
	first := handle.Members[0].Name
	handle.Depth = strings.Count(first, "/")
	handle.RunID = RunIdentifier(first)
	return handle, nil
}

// RunIdentifier derives the run id from a member name: the base name with one
// leading dot removed, cut at the first remaining dot.
func RunIdentifier(member string) string {
	base := path.Base(normalizeMemberName(member))
	base = strings.TrimPrefix(base, ".")
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return base
}

// Relative strips the first Depth path segments from an archive member name.
func (h Handle) Relative(member string) string {
	name := normalizeMemberName(member)
	for n := 0; n < h.Depth; n++ {
		idx := strings.Index(name, "/")
		if idx < 0 {
			break
		}
		name = name[idx+1:]
	}
	return name
}

// Lookup resolves a manifest member name to the archive member, comparing
// depth-relative names first and falling back to an exact match.
func (h Handle) Lookup(name string) (Member, bool) {
	name = normalizeMemberName(name)
	for _, member := range h.Members {
		if h.Relative(member.Name) == name {
			return member, true
		}
	}
	for _, member := range h.Members {
		if member.Name == name {
			return member, true
		}
	}
	return Member{}, false
}

// TotalSize sums the uncompressed sizes of all real members.
func (h Handle) TotalSize() int64 {
	var total int64
	for _, member := range h.Members {
		total += member.Size
	}
	return total
}
