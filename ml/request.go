package ml

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"etaengine/geo"
	"etaengine/schema"
)

// Request is one inference request as collected by the front end.
type Request struct {
	Age                int     `json:"age" validate:"gte=18,lte=60"`
	Rating             int     `json:"rating" validate:"gte=1,lte=5"`
	MultipleDeliveries int     `json:"multiple_deliveries" validate:"gte=0,lte=3"`
	OrderHour          int     `json:"order_hour" validate:"gte=0,lte=23"`
	PickupHour         int     `json:"pickup_hour" validate:"gte=0,lte=23"`
	RestaurantLat      float64 `json:"restaurant_lat" validate:"gte=-90,lte=90"`
	RestaurantLon      float64 `json:"restaurant_lon" validate:"gte=-180,lte=180"`
	DeliveryLat        float64 `json:"delivery_lat" validate:"gte=-90,lte=90"`
	DeliveryLon        float64 `json:"delivery_lon" validate:"gte=-180,lte=180"`
}

// DefaultRequest holds the values the form starts with.
func DefaultRequest() Request {
	return Request{
		Age:                28,
		Rating:             4,
		MultipleDeliveries: 0,
		OrderHour:          19,
		PickupHour:         19,
		RestaurantLat:      12.97,
		RestaurantLon:      77.59,
		DeliveryLat:        13.08,
		DeliveryLon:        80.27,
	}
}

func (r Request) Route() (from, to geo.Point) {
	return geo.Point{Lat: r.RestaurantLat, Lon: r.RestaurantLon},
		geo.Point{Lat: r.DeliveryLat, Lon: r.DeliveryLon}
}

func (r Request) DistanceKM() float64 {
	return geo.Haversine(r.RestaurantLat, r.RestaurantLon, r.DeliveryLat, r.DeliveryLon)
}

// Features returns the request as a named feature row, including the derived
// distance. Columns the request cannot know about, such as one-hot
// indicators, are left to schema reindexing.
func (r Request) Features() map[string]float64 {
	return map[string]float64{
		schema.RiderAge:           float64(r.Age),
		schema.RiderRating:        float64(r.Rating),
		schema.MultipleDeliveries: float64(r.MultipleDeliveries),
		schema.OrderHour:          float64(r.OrderHour),
		schema.PickupHour:         float64(r.PickupHour),
		schema.RestaurantLat:      r.RestaurantLat,
		schema.RestaurantLon:      r.RestaurantLon,
		schema.DeliveryLat:        r.DeliveryLat,
		schema.DeliveryLon:        r.DeliveryLon,
		schema.DistanceKM:         r.DistanceKM(),
	}
}

// ValidationError lists rejected request fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateRequest(v *validator.Validate, req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	verr := &ValidationError{Fields: make(map[string]string, len(errs))}
	for _, fe := range errs {
		verr.Fields[fe.Field()] = describe(fe)
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
