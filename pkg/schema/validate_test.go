package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func fullInput() SchemeInput {
	return SchemeInput{
		Name:        strp("  Student Aid  "),
		Description: strp("Scholarship"),
		Category:    strp("Education"),
		Eligibility: strp("Age 18-25"),
		StartDate:   strp("2024-01-01"),
	}
}

func TestPrepare_Defaults(t *testing.T) {
	s, err := Prepare(nil, fullInput())
	require.NoError(t, err)

	assert.Equal(t, "Student Aid", s.Name, "name is trimmed")
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, []string{}, s.Benefits)
	assert.Nil(t, s.EndDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.StartDate)

	in := fullInput()
	in.Category = nil
	s, err = Prepare(nil, in)
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, s.Category)
}

func TestPrepare_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SchemeInput)
		want   []string
	}{
		{
			name:   "missing name",
			mutate: func(in *SchemeInput) { in.Name = nil },
			want:   []string{"Scheme name is required"},
		},
		{
			name:   "blank description",
			mutate: func(in *SchemeInput) { in.Description = strp("   ") },
			want:   []string{"Description is required"},
		},
		{
			name:   "empty category",
			mutate: func(in *SchemeInput) { in.Category = strp("") },
			want:   []string{"Category is required"},
		},
		{
			name: "enum violations",
			mutate: func(in *SchemeInput) {
				in.Category = strp("Bogus")
				in.Status = strp("Archived")
			},
			want: []string{
				"`Bogus` is not a valid enum value for path `category`.",
				"`Archived` is not a valid enum value for path `status`.",
			},
		},
		{
			name: "dates",
			mutate: func(in *SchemeInput) {
				in.StartDate = strp("tomorrow")
				in.EndDate = strp("31/12/2024")
			},
			want: []string{
				`Cast to date failed for value "tomorrow" at path "startDate"`,
				`Cast to date failed for value "31/12/2024" at path "endDate"`,
			},
		},
		{
			name:   "missing start date",
			mutate: func(in *SchemeInput) { in.StartDate = nil },
			want:   []string{"Start date is required"},
		},
		{
			name: "everything missing",
			mutate: func(in *SchemeInput) {
				*in = SchemeInput{}
			},
			want: []string{
				"Scheme name is required",
				"Description is required",
				"Eligibility criteria is required",
				"Start date is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fullInput()
			tt.mutate(&in)

			_, err := Prepare(nil, in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
			assert.Equal(t, tt.want, verr.Messages())
		})
	}
}

func TestPrepare_MergesOntoCurrent(t *testing.T) {
	current, err := Prepare(nil, fullInput())
	require.NoError(t, err)
	current.ID = NewID()
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	current.EndDate = &end
	current.Benefits = []string{"Tuition"}

	merged, err := Prepare(current, SchemeInput{Description: strp("Updated")})
	require.NoError(t, err)
	assert.Equal(t, current.ID, merged.ID)
	assert.Equal(t, "Updated", merged.Description)
	assert.Equal(t, "Student Aid", merged.Name)
	assert.Equal(t, []string{"Tuition"}, merged.Benefits)
	require.NotNil(t, merged.EndDate)

	cleared, err := Prepare(current, SchemeInput{EndDate: strp("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.EndDate)

	assert.Equal(t, "Scholarship", current.Description, "current must not be modified")
	assert.NotNil(t, current.EndDate)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15T10:20:30Z", time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC)},
		{"2024-03-15T10:20:30.123456+02:00", time.Date(2024, 3, 15, 8, 20, 30, 123_000_000, time.UTC)},
		{"2024-03-15T10:20:30.500", time.Date(2024, 3, 15, 10, 20, 30, 500_000_000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseDate(tt.raw)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	got, err := parseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFilterMatches(t *testing.T) {
	s := &Scheme{Name: "Health Cover", Description: "Medical costs", Category: CategoryHealthcare, Status: StatusActive}

	assert.True(t, Filter{}.Matches(s))
	assert.True(t, Filter{Category: "Healthcare", Search: "MEDICAL"}.Matches(s))
	assert.False(t, Filter{Category: "healthcare"}.Matches(s), "category match is exact")
	assert.False(t, Filter{Status: "Draft"}.Matches(s))
	assert.False(t, Filter{Search: "housing"}.Matches(s))
}

func TestInputRoundTrip(t *testing.T) {
	s, err := Prepare(nil, fullInput())
	require.NoError(t, err)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	s.EndDate = &end
	s.Benefits = []string{"Books"}

	again, err := Prepare(nil, s.Input())
	require.NoError(t, err)
	assert.Equal(t, s.Name, again.Name)
	assert.Equal(t, s.Benefits, again.Benefits)
	assert.Equal(t, s.StartDate, again.StartDate)
	assert.Equal(t, *s.EndDate, *again.EndDate)
}
