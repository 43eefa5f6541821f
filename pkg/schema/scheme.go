// Package schema defines the Scheme record shared by the API, the storage
// backends and the SDK.
package schema

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category classifies the public program a scheme describes.
type Category string

const (
	CategoryEducation  Category = "Education"
	CategoryHealthcare Category = "Healthcare"
	CategoryHousing    Category = "Housing"
	CategoryEmployment Category = "Employment"
	CategoryFinancial  Category = "Financial"
	CategoryOther      Category = "Other"
)

// Categories lists every accepted category in declaration order.
var Categories = []Category{
	CategoryEducation,
	CategoryHealthcare,
	CategoryHousing,
	CategoryEmployment,
	CategoryFinancial,
	CategoryOther,
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Status is the publication state of a scheme.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusDraft    Status = "Draft"
)

// Statuses lists every accepted status.
var Statuses = []Status{StatusActive, StatusInactive, StatusDraft}

// IsValid reports whether s is one of the enumerated statuses.
func (s Status) IsValid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Scheme is a government or welfare program record.
type Scheme struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	Name        string             `bson:"name" json:"name" validate:"required"`
	Description string             `bson:"description" json:"description" validate:"required"`
	Category    Category           `bson:"category" json:"category" validate:"required,scheme_category"`
	Eligibility string             `bson:"eligibility" json:"eligibility" validate:"required"`
	Benefits    []string           `bson:"benefits" json:"benefits"`
	Status      Status             `bson:"status" json:"status" validate:"scheme_status"`
	StartDate   time.Time          `bson:"startDate" json:"startDate" validate:"required"`
	EndDate     *time.Time         `bson:"endDate,omitempty" json:"endDate,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewScheme returns an unsaved scheme carrying the field defaults.
func NewScheme() *Scheme {
	return &Scheme{
		Category: CategoryOther,
		Status:   StatusActive,
		Benefits: []string{},
	}
}

// Clone returns a deep copy of s.
func (s *Scheme) Clone() *Scheme {
	c := *s
	c.Benefits = append([]string{}, s.Benefits...)
	if s.EndDate != nil {
		end := *s.EndDate
		c.EndDate = &end
	}
	return &c
}

// SchemeInput carries the client-writable fields of a create or update
// request. A nil field was omitted by the client and leaves the target
// value untouched.
type SchemeInput struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Eligibility *string   `json:"eligibility,omitempty"`
	Benefits    *[]string `json:"benefits,omitempty"`
	Status      *string   `json:"status,omitempty"`
	StartDate   *string   `json:"startDate,omitempty"`
	EndDate     *string   `json:"endDate,omitempty"`
}

// Input converts a stored scheme back into a full write payload.
func (s *Scheme) Input() SchemeInput {
	name, description, eligibility := s.Name, s.Description, s.Eligibility
	category := string(s.Category)
	status := string(s.Status)
	benefits := append([]string{}, s.Benefits...)
	start := s.StartDate.Format(time.RFC3339Nano)

	in := SchemeInput{
		Name:        &name,
		Description: &description,
		Category:    &category,
		Eligibility: &eligibility,
		Benefits:    &benefits,
		Status:      &status,
		StartDate:   &start,
	}
	if s.EndDate != nil {
		end := s.EndDate.Format(time.RFC3339Nano)
		in.EndDate = &end
	}
	return in
}

// Filter narrows a listing. Empty fields impose no constraint.
type Filter struct {
	Category string `form:"category" json:"category,omitempty"`
	Status   string `form:"status" json:"status,omitempty"`
	// Search matches name or description, case-insensitively.
	Search string `form:"search" json:"search,omitempty"`
}

// Matches reports whether s satisfies every constraint in f.
func (f Filter) Matches(s *Scheme) bool {
	if f.Category != "" && string(s.Category) != f.Category {
		return false
	}
	if f.Status != "" && string(s.Status) != f.Status {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(s.Name), needle) &&
			!strings.Contains(strings.ToLower(s.Description), needle) {
			return false
		}
	}
	return true
}

// Now returns the current UTC time truncated to the millisecond precision
// every backend can store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewID allocates a fresh scheme identifier.
func NewID() primitive.ObjectID {
	return primitive.NewObjectID()
}

// ParseID decodes the hex form of a scheme identifier.
func ParseID(id string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(id)
}
