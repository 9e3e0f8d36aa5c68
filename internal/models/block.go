package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// BlockKind tags a content block variant.
type BlockKind string

// Block kinds in render priority order.
const (
	BlockText  BlockKind = "TEXT"
	BlockImage BlockKind = "IMAGE"
	BlockVideo BlockKind = "VIDEO"
)

var renderPriority = map[BlockKind]int{
	BlockText:  0,
	BlockImage: 1,
	BlockVideo: 2,
}

// IsMedia reports whether the block body references stored media.
func (k BlockKind) IsMedia() bool {
	return k == BlockImage || k == BlockVideo
}

// MediaMetadata describes an uploaded media object.
type MediaMetadata struct {
	OriginalFileName string `json:"originalFileName,omitempty"`
	SizeBytes        int64  `json:"sizeBytes,omitempty"`
	MimeType         string `json:"mimeType,omitempty"`
}

// ContentBlock is one unit of authored content. Body holds literal text for
// TEXT blocks and the public storage URL for media blocks.
type ContentBlock struct {
	Kind     BlockKind      `json:"kind" validate:"required,oneof=TEXT IMAGE VIDEO"`
	Body     string         `json:"body"`
	Metadata *MediaMetadata `json:"metadata,omitempty"`
}

// BlockList is an ordered, author-significant sequence of blocks stored as JSONB.
type BlockList []ContentBlock

// Value implements driver.Valuer.
func (b BlockList) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner.
func (b *BlockList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported block list type %T", src)
	}
	if len(raw) == 0 {
		*b = nil
		return nil
	}
	var out BlockList
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*b = out
	return nil
}

// BlockError reports why a block list was rejected. Index is -1 for list-level problems.
type BlockError struct {
	Index  int
	Reason string
}

func (e *BlockError) Error() string {
	if e.Index < 0 {
		return e.Reason
	}
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

// ValidateMode selects how strictly media bodies are checked.
type ValidateMode int

const (
	// ValidateForPersist rejects media blocks without a resolved URL.
	ValidateForPersist ValidateMode = iota
	// ValidateAllowPending accepts media blocks whose upload is still in flight.
	ValidateAllowPending
)

// Validate checks the list is non-empty and every block is well formed.
func (b BlockList) Validate(mode ValidateMode) error {
	if len(b) == 0 {
		return &BlockError{Index: -1, Reason: "at least one content block is required"}
	}
	for i, block := range b {
		switch {
		case block.Kind == BlockText:
			if strings.TrimSpace(block.Body) == "" {
				return &BlockError{Index: i, Reason: "text block must not be empty"}
			}
		case block.Kind.IsMedia():
			if block.Body == "" {
				if mode == ValidateAllowPending {
					continue
				}
				return &BlockError{Index: i, Reason: "media block has no uploaded file"}
			}
			if !isPublicURL(block.Body) {
				return &BlockError{Index: i, Reason: "media block must reference a public storage URL"}
			}
		default:
			return &BlockError{Index: i, Reason: fmt.Sprintf("unknown block kind %q", block.Kind)}
		}
	}
	return nil
}

// RenderOrder returns a copy sorted TEXT < IMAGE < VIDEO, keeping authored order within a kind.
func (b BlockList) RenderOrder() BlockList {
	if b == nil {
		return nil
	}
	out := make(BlockList, len(b))
	copy(out, b)
	sort.SliceStable(out, func(i, j int) bool {
		return renderPriority[out[i].Kind] < renderPriority[out[j].Kind]
	})
	return out
}

// MediaURLs lists the bodies of media blocks that carry a URL.
func (b BlockList) MediaURLs() []string {
	urls := make([]string, 0, len(b))
	for _, block := range b {
		if block.Kind.IsMedia() && block.Body != "" {
			urls = append(urls, block.Body)
		}
	}
	return urls
}

func isPublicURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
