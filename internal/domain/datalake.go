package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DataLakeEventName is the only event name the data lake accepts from this
// service.
const DataLakeEventName = "weni_nexus_data"

// Data-lake event keys recognized on ingested messages.
const (
	KeyCSAT = "weni_csat"
	KeyNPS  = "weni_nps"
)

// DataLakeEvent is the payload posted to the data-lake transport for CSAT
// and NPS observations.
type DataLakeEvent struct {
	EventName  string         `json:"event_name" validate:"eq=weni_nexus_data"`
	Date       string         `json:"date" validate:"notblank"`
	Project    string         `json:"project" validate:"notblank"`
	ContactURN string         `json:"contact_urn" validate:"notblank"`
	Key        string         `json:"key" validate:"notblank"`
	ValueType  string         `json:"value_type" validate:"notblank"`
	Value      any            `json:"value"`
	Metadata   map[string]any `json:"metadata"`
}

var dataLakeValidator = newDataLakeValidator()

func newDataLakeValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the event before sending. It fails with a single error
// naming every invalid field so callers can log the full picture at once.
func (e DataLakeEvent) Validate() error {
	var msgs []string
	if err := dataLakeValidator.Struct(e); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("op=datalake.validate: %w", err)
		}
		for _, fe := range verrs {
			if fe.Tag() == "eq" {
				msgs = append(msgs, fmt.Sprintf("event_name must be %q", DataLakeEventName))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s cannot be empty", fe.Field()))
		}
	}
	if e.Value == nil {
		msgs = append(msgs, "value cannot be nil")
	}
	if len(msgs) > 0 {
		return fmt.Errorf("%w: event validation failed: %s", ErrInvalidArgument, strings.Join(msgs, ", "))
	}
	return nil
}

// Payload returns the wire shape of the event with string fields trimmed.
func (e DataLakeEvent) Payload() map[string]any {
	return map[string]any{
		"event_name":  e.EventName,
		"date":        e.Date,
		"project":     strings.TrimSpace(e.Project),
		"contact_urn": strings.TrimSpace(e.ContactURN),
		"key":         strings.TrimSpace(e.Key),
		"value_type":  e.ValueType,
		"value":       e.Value,
		"metadata":    e.Metadata,
	}
}
