package enumerate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestFileNames(t *testing.T) {
	tests := []struct {
		name     string
		category string
		start    time.Time
		end      time.Time
		expected []string
	}{
		{
			name:     "three months",
			category: "yellow",
			start:    month(2023, time.January),
			end:      month(2023, time.March),
			expected: []string{
				"yellow_tripdata_2023-01.csv.gz",
				"yellow_tripdata_2023-02.csv.gz",
				"yellow_tripdata_2023-03.csv.gz",
			},
		},
		{
			name:     "single month",
			category: "green",
			start:    month(2021, time.July),
			end:      month(2021, time.July),
			expected: []string{"green_tripdata_2021-07.csv.gz"},
		},
		{
			name:     "year boundary",
			category: "fhv",
			start:    month(2019, time.November),
			end:      month(2020, time.February),
			expected: []string{
				"fhv_tripdata_2019-11.csv.gz",
				"fhv_tripdata_2019-12.csv.gz",
				"fhv_tripdata_2020-01.csv.gz",
				"fhv_tripdata_2020-02.csv.gz",
			},
		},
		{
			name:     "start after end is empty",
			category: "yellow",
			start:    month(2023, time.March),
			end:      month(2023, time.January),
			expected: []string{},
		},
		{
			name:     "day of month ignored",
			category: "yellow",
			start:    time.Date(2022, time.May, 17, 9, 30, 0, 0, time.UTC),
			end:      time.Date(2022, time.June, 2, 0, 0, 0, 0, time.UTC),
			expected: []string{
				"yellow_tripdata_2022-05.csv.gz",
				"yellow_tripdata_2022-06.csv.gz",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FileNames(tt.category, tt.start, tt.end))
		})
	}
}

func TestFileNamesNoGapsOrDuplicates(t *testing.T) {
	names := FileNames("yellow", month(2015, time.January), month(2024, time.December))
	require.Len(t, names, 120)
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate name %s", n)
		seen[n] = true
	}
	assert.Equal(t, "yellow_tripdata_2015-01.csv.gz", names[0])
	assert.Equal(t, "yellow_tripdata_2024-12.csv.gz", names[len(names)-1])
}

func TestFileRefs(t *testing.T) {
	refs := FileRefs("green", month(2020, time.January), month(2020, time.January))
	require.Len(t, refs, 1)
	assert.Equal(t, "green_tripdata_2020-01.csv.gz", refs[0].Name)
	assert.Equal(t,
		"https://github.com/DataTalksClub/nyc-tlc-data/releases/download/green/green_tripdata_2020-01.csv.gz",
		refs[0].URL,
	)
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2023-04")
	require.NoError(t, err)
	assert.Equal(t, month(2023, time.April), got)

	_, err = ParseMonth("2023-4")
	assert.Error(t, err)
	_, err = ParseMonth("04-2023")
	assert.Error(t, err)
	_, err = ParseMonth("")
	assert.Error(t, err)
}

func TestFileNamesDeterministic(t *testing.T) {
	a := FileNames("yellow", month(2023, time.January), month(2023, time.June))
	b := FileNames("yellow", month(2023, time.January), month(2023, time.June))
	assert.Equal(t, a, b)
}
