// Package pattern encodes the three-symbol selections used as a second factor
// and generates the option sets they are chosen from.
package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Length is the number of elements in a pattern.
const Length = 3

type Category string

const (
	Phrase Category = "phrase"
	Image  Category = "image"
	Icon   Category = "icon"
)

func (c Category) valid() bool {
	return c == Phrase || c == Image || c == Icon
}

// Element is one pick: a category and an index into that category's options.
type Element struct {
	Category Category
	Index    int
}

// String returns the wire form, e.g. "phrase-0".
func (e Element) String() string {
	return string(e.Category) + "-" + strconv.Itoa(e.Index)
}

// Selection is an ordered pattern. Order matters for equality.
type Selection []Element

var (
	ErrLength    = fmt.Errorf("pattern must have exactly %d elements", Length)
	ErrElement   = errors.New("invalid pattern element")
	ErrDuplicate = errors.New("pattern elements must be distinct")
)

// ParseElement reads the wire form "<category>-<index>".
func ParseElement(s string) (Element, error) {
	cat, idx, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Element{}, fmt.Errorf("%w: %q", ErrElement, s)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Element{}, fmt.Errorf("%w: %q", ErrElement, s)
	}
	e := Element{Category: Category(cat), Index: n}
	if !e.Category.valid() {
		return Element{}, fmt.Errorf("%w: unknown category %q", ErrElement, cat)
	}
	return e, nil
}

// Parse validates a submitted pattern.
func Parse(raw []string) (Selection, error) {
	if len(raw) != Length {
		return nil, ErrLength
	}
	sel := make(Selection, 0, Length)
	seen := make(map[Element]bool, Length)
	for _, s := range raw {
		e, err := ParseElement(s)
		if err != nil {
			return nil, err
		}
		if seen[e] {
			return nil, ErrDuplicate
		}
		seen[e] = true
		sel = append(sel, e)
	}
	return sel, nil
}

// Strings returns the wire form of every element.
func (s Selection) Strings() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.String()
	}
	return out
}

// Encode returns the canonical stored form: a JSON array of wire strings.
func Encode(s Selection) string {
	b, _ := json.Marshal(s.Strings())
	return string(b)
}

// Decode parses a stored pattern.
func Decode(encoded string) (Selection, error) {
	var raw []string
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, fmt.Errorf("decode pattern: %w", err)
	}
	return Parse(raw)
}

// Equal compares element by element, in order.
func (s Selection) Equal(other Selection) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Fits reports whether every index points into its category's option set.
func (s Selection) Fits(o Options) bool {
	for _, e := range s {
		if e.Index >= len(o.category(e.Category)) {
			return false
		}
	}
	return true
}
