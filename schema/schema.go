// Package schema holds the feature-column contract shared by training and inference.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Column names of the delivery dataset.
const (
	Target             = "Time_taken (min)"
	RiderAge           = "Delivery_person_Age"
	RiderRating        = "Delivery_person_Ratings"
	MultipleDeliveries = "multiple_deliveries"
	TimeOrdered        = "Time_Orderd"
	TimePicked         = "Time_Order_picked"
	OrderHour          = "Order_Hour"
	PickupHour         = "Pickup_Hour"
	RestaurantLat      = "Restaurant_latitude"
	RestaurantLon      = "Restaurant_longitude"
	DeliveryLat        = "Delivery_location_latitude"
	DeliveryLon        = "Delivery_location_longitude"
	DistanceKM         = "distance_km"
)

// DefaultDropColumns are identifier/date columns removed before encoding.
var DefaultDropColumns = []string{"ID", "Delivery_person_ID", "Order_Date"}

// NumericColumns are coerced to numbers and median-imputed.
var NumericColumns = []string{RiderAge, RiderRating, MultipleDeliveries}

// CoordinateColumns in restaurant lat/lon, delivery lat/lon order.
var CoordinateColumns = []string{RestaurantLat, RestaurantLon, DeliveryLat, DeliveryLon}

var (
	ErrEmptySchema     = errors.New("schema has no columns")
	ErrDuplicateColumn = errors.New("duplicate column in schema")
)

// Schema is an immutable, ordered list of feature-column names.
type Schema struct {
	columns []string
	index   map[string]int
}

// Alignment is a row laid out in schema order.
type Alignment struct {
	Values    []float64
	Defaulted []string
	Ignored   []string
}

func New(columns []string) (Schema, error) {
	if len(columns) == 0 {
		return Schema{}, ErrEmptySchema
	}
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if _, ok := index[name]; ok {
			return Schema{}, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		index[name] = i
	}
	return Schema{
		columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

func (s Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s Schema) Len() int {
	return len(s.columns)
}

func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fingerprint identifies the ordered column list. Two schemas share a
// fingerprint only when they list the same names in the same order.
func (s Schema) Fingerprint() string {
	h := sha256.New()
	for _, name := range s.columns {
		fmt.Fprintf(h, "%d:%s;", len(name), name)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Reindex lays row out in schema order. Schema columns missing from row are
// filled with 0; row keys unknown to the schema are reported and skipped.
func (s Schema) Reindex(row map[string]float64) Alignment {
	aligned := Alignment{Values: make([]float64, len(s.columns))}
	for i, name := range s.columns {
		value, ok := row[name]
		if !ok {
			aligned.Defaulted = append(aligned.Defaulted, name)
			continue
		}
		aligned.Values[i] = value
	}
	for name := range row {
		if !s.Has(name) {
			aligned.Ignored = append(aligned.Ignored, name)
		}
	}
	sort.Strings(aligned.Ignored)
	return aligned
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.columns)
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var columns []string
	if err := json.Unmarshal(data, &columns); err != nil {
		return err
	}
	parsed, err := New(columns)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
