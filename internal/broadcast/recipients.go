package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wabox/wabox/internal/store"
)

// ErrInvalidSelector is returned when a recipient selector cannot be
// interpreted. Malformed selectors never fall back to defaults.
var ErrInvalidSelector = errors.New("invalid recipient selector")

// DefaultBuiltins are the configured group names shown before any group
// chats discovered from the archive.
var DefaultBuiltins = []string{"All Contacts", "Family", "Friends"}

// RecipientGroup is a named set of destination JIDs.
type RecipientGroup struct {
	Name string
	JIDs []string
}

// GroupList is the ordered list of groups offered to selector indices.
// Ordering is stable: builtins first, then group chats as listed by the
// archive.
type GroupList []RecipientGroup

// Selector designates broadcast recipients either as explicit JIDs or as
// 1-based indices into a GroupList. At most one of the two may be set.
type Selector struct {
	JIDs    []string
	Indices []int
}

// IsEmpty reports whether the selector designates nothing, which routes the
// broadcast to the configured defaults.
func (s Selector) IsEmpty() bool {
	return len(s.JIDs) == 0 && len(s.Indices) == 0
}

// ParseSelector decodes a raw JSON selector. Accepted shapes are a JSON
// array of strings (explicit JIDs), a JSON array of integers (group
// indices), or empty/null (use defaults). Mixed arrays, non-integer
// numbers, and any other shape are ErrInvalidSelector.
func ParseSelector(raw []byte) (Selector, error) {
	if len(raw) == 0 {
		return Selector{}, nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return Selector{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
	}
	if len(items) == 0 {
		return Selector{}, nil
	}

	var sel Selector
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if len(sel.Indices) > 0 {
				return Selector{}, fmt.Errorf("%w: mixed strings and numbers", ErrInvalidSelector)
			}
			sel.JIDs = append(sel.JIDs, v)
		case float64:
			if len(sel.JIDs) > 0 {
				return Selector{}, fmt.Errorf("%w: mixed strings and numbers", ErrInvalidSelector)
			}
			n := int(v)
			if float64(n) != v {
				return Selector{}, fmt.Errorf("%w: non-integer index %v", ErrInvalidSelector, v)
			}
			sel.Indices = append(sel.Indices, n)
		default:
			return Selector{}, fmt.Errorf("%w: unsupported element %T", ErrInvalidSelector, item)
		}
	}
	return sel, nil
}

// Resolve expands a selector into a deduplicated, order-preserving list of
// destination JIDs. Indices are 1-based; out-of-range indices are skipped.
func Resolve(groups GroupList, defaults []string, sel Selector) ([]string, error) {
	if len(sel.JIDs) > 0 && len(sel.Indices) > 0 {
		return nil, fmt.Errorf("%w: both JIDs and indices set", ErrInvalidSelector)
	}
	if sel.IsEmpty() {
		return dedupe(defaults), nil
	}
	if len(sel.JIDs) > 0 {
		return dedupe(sel.JIDs), nil
	}

	var out []string
	for _, idx := range sel.Indices {
		if idx < 1 || idx > len(groups) {
			continue
		}
		out = append(out, groups[idx-1].JIDs...)
	}
	return dedupe(out), nil
}

// dedupe removes duplicates while keeping first-occurrence order.
func dedupe(jids []string) []string {
	seen := make(map[string]struct{}, len(jids))
	out := make([]string, 0, len(jids))
	for _, jid := range jids {
		if _, ok := seen[jid]; ok {
			continue
		}
		seen[jid] = struct{}{}
		out = append(out, jid)
	}
	return out
}

// LoadGroups builds the selectable group list: the configured builtins
// followed by every group chat known to the archive. A group chat with no
// stored name is listed under its JID.
func LoadGroups(db *store.DB, builtins GroupList) (GroupList, error) {
	groups := make(GroupList, 0, len(builtins))
	groups = append(groups, builtins...)

	chats, err := db.ListGroupChats()
	if err != nil {
		return nil, fmt.Errorf("list group chats: %w", err)
	}
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = c.JID
		}
		groups = append(groups, RecipientGroup{Name: name, JIDs: []string{c.JID}})
	}
	return groups, nil
}
