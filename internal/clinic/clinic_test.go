package clinic

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdaysUnmarshalIsPermissive(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Weekdays
	}{
		{name: "numbers", raw: `[1,3,5]`, want: Weekdays{1, 3, 5}},
		{name: "numeric strings", raw: `["0","6"]`, want: Weekdays{0, 6}},
		{name: "out of range dropped", raw: `[7,-1,2,9]`, want: Weekdays{2}},
		{name: "junk dropped", raw: `["mon",true,null,4]`, want: Weekdays{4}},
		{name: "duplicates collapse and sort", raw: `[5,1,5,"1"]`, want: Weekdays{1, 5}},
		{name: "empty", raw: `[]`, want: Weekdays{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Weekdays
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeekdaysUnmarshalRejectsNonList(t *testing.T) {
	var got Weekdays
	assert.Error(t, json.Unmarshal([]byte(`"1,2"`), &got))

	got = Weekdays{1, 3}
	require.NoError(t, got.UnmarshalJSON([]byte(` null `)))
	assert.Nil(t, got)
}

func TestSplitDates(t *testing.T) {
	assert.Equal(t, []string{"2025-12-25", "2025-12-31"}, SplitDates("2025-12-25; 2025-12-31"))
	assert.Equal(t, []string{"2025-12-25", "not-a-date"}, SplitDates(" 2025-12-25 ;; not-a-date ;"))
	assert.Nil(t, SplitDates("  ;  "))
}

func TestInputNormalize(t *testing.T) {
	in := Input{
		Name:           "  Dr. Khan ",
		TimeRange:      " 5 PM - 9 PM ",
		AttendanceTime: "4:30 PM",
		Weekdays:       Weekdays{1, 3, 5, 7},
		ExplicitDates:  []string{"2025-12-25"},
		DatesRaw:       "2025-12-25; 2025-12-31; ",
	}

	c := in.Normalize()

	assert.Equal(t, "Dr. Khan", c.Name)
	assert.Equal(t, "5 PM - 9 PM", c.TimeRange)
	assert.Equal(t, Weekdays{1, 3, 5}, c.Weekdays)
	assert.Equal(t, []string{"2025-12-25", "2025-12-31"}, c.ExplicitDates)
}

func TestNormalizeAllDropsNamelessEntries(t *testing.T) {
	clinics := NormalizeAll([]Input{{Name: "Dr. Khan"}, {Name: "   "}, {Name: "Dr. Ahmed"}})
	require.Len(t, clinics, 2)
	assert.Equal(t, "Dr. Ahmed", clinics[1].Name)
}

func TestClinicHasWeekdayAndDate(t *testing.T) {
	c := Clinic{Name: "Dr. Khan", Weekdays: Weekdays{1, 3, 5}, ExplicitDates: []string{"2025-12-25"}}

	assert.True(t, c.HasWeekday(time.Monday))
	assert.False(t, c.HasWeekday(time.Sunday))
	assert.True(t, c.HasExplicitDate("2025-12-25"))
	assert.False(t, c.HasExplicitDate("2025-12-24"))
}

func TestValidateClinics(t *testing.T) {
	assert.NoError(t, ValidateClinics([]Clinic{{Name: "Dr. Khan"}, {Name: "Dr. Ahmed"}}))

	err := ValidateClinics([]Clinic{{Name: "Dr. Khan"}, {Name: "Dr. Khan"}})
	assert.True(t, errors.Is(err, ErrDuplicateClinic))

	err = ValidateClinics([]Clinic{{Name: " "}})
	assert.True(t, errors.Is(err, ErrNameRequired))
}

func TestSettingsValidateRejectsNewerSchema(t *testing.T) {
	s := DefaultSettings()
	s.Version = SchemaVersion + 1
	assert.True(t, errors.Is(s.Validate(), ErrUnsupportedSchema))
}

func TestSettingsCloneIsDeep(t *testing.T) {
	s := DefaultSettings()
	s.Clinics = []Clinic{{Name: "Dr. Khan", Weekdays: Weekdays{1}, ExplicitDates: []string{"2025-12-25"}}}

	clone := s.Clone()
	clone.Clinics[0].Weekdays[0] = 6
	clone.Clinics[0].ExplicitDates[0] = "2030-01-01"
	clone.Clinics = append(clone.Clinics, Clinic{Name: "Dr. Ahmed"})

	assert.Equal(t, Weekdays{1}, s.Clinics[0].Weekdays)
	assert.Equal(t, "2025-12-25", s.Clinics[0].ExplicitDates[0])
	assert.Len(t, s.Clinics, 1)
}

func TestWhatsAppConfigured(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.WhatsAppConfigured())
	s.WhatsAppAPIEndpoint = "https://wa.example/send"
	assert.False(t, s.WhatsAppConfigured())
	s.WhatsAppPhone = "8801700000000"
	assert.True(t, s.WhatsAppConfigured())
}

func TestDecodeSettingsUpgradesLegacyRecord(t *testing.T) {
	legacy := `{"clinics":[{"name":"Dr. Khan","weekdays":["1",8,3]}]}`

	s, err := decodeSettings([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, s.Version)
	assert.Equal(t, Weekdays{1, 3}, s.Clinics[0].Weekdays)
}
