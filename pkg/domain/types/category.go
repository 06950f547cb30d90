package types

import "fmt"

// Category classifies what a memory item represents
type Category string

const (
	CategoryContext      Category = "context"
	CategoryPreference   Category = "preference"
	CategoryEntity       Category = "entity"
	CategoryFact         Category = "fact"
	CategoryRelationship Category = "relationship"
)

// AllCategories returns all valid memory categories
func AllCategories() []Category {
	return []Category{
		CategoryContext,
		CategoryPreference,
		CategoryEntity,
		CategoryFact,
		CategoryRelationship,
	}
}

// IsValid checks if the category is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryContext,
		CategoryPreference,
		CategoryEntity,
		CategoryFact,
		CategoryRelationship:
		return true
	default:
		return false
	}
}

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// ParseCategory parses a string into a Category
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid memory category: %s", s)
	}
	return c, nil
}
