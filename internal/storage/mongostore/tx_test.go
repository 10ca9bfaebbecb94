package mongostore

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

func TestTripQuery(t *testing.T) {
	day := time.Date(2030, 3, 14, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter models.TripFilter
		want   bson.M
	}{
		{name: "no filter", filter: models.TripFilter{}, want: bson.M{}},
		{
			name:   "source is a case-insensitive substring",
			filter: models.TripFilter{Source: "york"},
			want:   bson.M{"source": bson.M{"$regex": "york", "$options": "i"}},
		},
		{
			name:   "regex metacharacters are quoted",
			filter: models.TripFilter{Destination: "St. Louis (MO)+"},
			want:   bson.M{"destination": bson.M{"$regex": `St\. Louis \(MO\)\+`, "$options": "i"}},
		},
		{
			name:   "date is a half-open day",
			filter: models.TripFilter{Date: &day},
			want: bson.M{"date": bson.M{
				"$gte": time.Date(2030, 3, 14, 0, 0, 0, 0, time.UTC),
				"$lt":  time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tripQuery(tt.filter))
		})
	}
}

func TestTripQuery_QuotedPatternMatchesLiterally(t *testing.T) {
	q := tripQuery(models.TripFilter{Source: "a.c"})
	pattern := q["source"].(bson.M)["$regex"].(string)

	re, err := regexp.Compile("(?i)" + pattern)
	require.NoError(t, err)
	assert.True(t, re.MatchString("Via A.C Depot"))
	assert.False(t, re.MatchString("abc"))
}

func TestTripSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}, tripSort)
}
