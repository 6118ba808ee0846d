package manifest

import "fmt"

// Category is the closed classification of a manifest entry.
type Category int

const (
	// Metadata members are small and extracted to the work directory.
	Metadata Category = iota
	// Bulk members stay compressed and are verified by streaming.
	Bulk
)

func (c Category) String() string {
	switch c {
	case Bulk:
		return "bulk"
	default:
		return "metadata"
	}
}

// MarshalText encodes the category as its name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bulk":
		*c = Bulk
	case "metadata", "":
		*c = Metadata
	default:
		return fmt.Errorf("unknown category %q", text)
	}
	return nil
}

// Classifier assigns categories by member-name suffix.
type Classifier struct {
	bulkSuffixes []string
}

// NewClassifier returns a classifier treating members ending in any of
// bulkSuffixes as Bulk.
func NewClassifier(bulkSuffixes []string) Classifier {
	cp := make([]string, len(bulkSuffixes))
	copy(cp, bulkSuffixes)
	return Classifier{bulkSuffixes: cp}
}

// Classify returns the category for an archive member name.
func (c Classifier) Classify(member string) Category {
	if hasSuffix(member, c.bulkSuffixes) {
		return Bulk
	}
	return Metadata
}

// Split partitions entries into bulk and metadata, preserving order.
func (c Classifier) Split(entries []Entry) (bulk, metadata []Entry) {
	for _, entry := range entries {
		if c.Classify(entry.Name) == Bulk {
			bulk = append(bulk, entry)
		} else {
			metadata = append(metadata, entry)
		}
	}
	return bulk, metadata
}
