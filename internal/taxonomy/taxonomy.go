package taxonomy

import (
	"errors"
	"fmt"
)

// ErrCodeNotFound is returned by Resolve for codes outside the taxonomy.
var ErrCodeNotFound = errors.New("taxonomy: code not found")

// ErrorCode classifies taxonomy validation failures.
type ErrorCode string

const (
	ErrorCodeEmptySubCode    ErrorCode = "empty_sub_category_code"
	ErrorCodeDuplicateCode   ErrorCode = "duplicate_sub_category_code"
	ErrorCodeDuplicateParent ErrorCode = "duplicate_parent_code"
	ErrorCodeNoCategories    ErrorCode = "no_categories"
)

// Error is a fatal campaign-configuration error. A campaign with an invalid
// taxonomy is not served until its configuration is fixed.
type Error struct {
	Code   ErrorCode
	Parent string
	Sub    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("taxonomy: %s (parent=%q sub=%q)", e.Code, e.Parent, e.Sub)
}

// Category is one selectable sub-category. Code is the canonical code
// attached to responses; Description is the display label.
type Category struct {
	Code        string `yaml:"code" json:"code"`
	Description string `yaml:"description" json:"description"`
}

// ParentCategory owns an ordered sequence of sub-categories. A flat taxonomy
// uses a single parent with an empty code.
type ParentCategory struct {
	Code          string     `yaml:"code" json:"code"`
	Description   string     `yaml:"description" json:"description"`
	SubCategories []Category `yaml:"sub_categories" json:"sub_categories"`
}

// Taxonomy is the validated two-level category tree of one campaign.
// Declaration order is preserved for stable chart ordering.
type Taxonomy struct {
	parents      []ParentCategory
	byCode       map[string]Category
	parentByCode map[string]string
	order        []string
}

// Validate parses a taxonomy definition into a Taxonomy. It rejects
// duplicate sub-category codes (within a parent and across parents of the
// same campaign), duplicate parent codes and missing sub-category codes.
func Validate(spec []ParentCategory) (*Taxonomy, error) {
	if len(spec) == 0 {
		return nil, &Error{Code: ErrorCodeNoCategories}
	}

	t := &Taxonomy{
		parents:      make([]ParentCategory, 0, len(spec)),
		byCode:       make(map[string]Category),
		parentByCode: make(map[string]string),
	}

	seenParents := make(map[string]bool)
	for _, parent := range spec {
		if seenParents[parent.Code] {
			return nil, &Error{Code: ErrorCodeDuplicateParent, Parent: parent.Code}
		}
		seenParents[parent.Code] = true

		for _, sub := range parent.SubCategories {
			if sub.Code == "" {
				return nil, &Error{Code: ErrorCodeEmptySubCode, Parent: parent.Code}
			}
			if _, exists := t.byCode[sub.Code]; exists {
				return nil, &Error{Code: ErrorCodeDuplicateCode, Parent: parent.Code, Sub: sub.Code}
			}
			t.byCode[sub.Code] = sub
			t.parentByCode[sub.Code] = parent.Code
			t.order = append(t.order, sub.Code)
		}
		t.parents = append(t.parents, parent)
	}

	return t, nil
}

// Resolve maps a canonical code to its sub-category.
func (t *Taxonomy) Resolve(code string) (Category, error) {
	sub, ok := t.byCode[code]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrCodeNotFound, code)
	}
	return sub, nil
}

// Has reports whether code names a sub-category or a parent category.
func (t *Taxonomy) Has(code string) bool {
	if _, ok := t.byCode[code]; ok {
		return true
	}
	for _, parent := range t.parents {
		if parent.Code != "" && parent.Code == code {
			return true
		}
	}
	return false
}

// AllCodes returns every sub-category code in declaration order.
func (t *Taxonomy) AllCodes() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Parents returns the parent categories in declaration order.
func (t *Taxonomy) Parents() []ParentCategory {
	out := make([]ParentCategory, len(t.parents))
	copy(out, t.parents)
	return out
}

// ParentOf returns the owning parent code of a sub-category code. Parent
// codes map to themselves, as in the original category hierarchy.
func (t *Taxonomy) ParentOf(code string) (string, bool) {
	if parent, ok := t.parentByCode[code]; ok {
		return parent, true
	}
	for _, parent := range t.parents {
		if parent.Code != "" && parent.Code == code {
			return parent.Code, true
		}
	}
	return "", false
}

// DescriptionOf returns the display label for a sub-category or parent
// code, falling back to the code itself for unknown codes.
func (t *Taxonomy) DescriptionOf(code string) string {
	if sub, ok := t.byCode[code]; ok {
		return sub.Description
	}
	for _, parent := range t.parents {
		if parent.Code != "" && parent.Code == code {
			return parent.Description
		}
	}
	return code
}
