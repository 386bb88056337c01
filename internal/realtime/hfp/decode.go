package hfp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrDecode marks a payload that could not be turned into a Ping. Callers
// drop the message and keep consuming the stream.
var ErrDecode = errors.New("hfp: malformed payload")

// payload mirrors the JSON body under the envelope key. Pointer fields
// distinguish "absent" from zero; validation checks presence only.
type payload struct {
	Desi  *string  `json:"desi" validate:"required"`
	Dir   *string  `json:"dir" validate:"required"`
	Oper  *int     `json:"oper" validate:"required"`
	Veh   *int     `json:"veh" validate:"required"`
	Tst   *string  `json:"tst" validate:"required"`
	Tsi   *int64   `json:"tsi" validate:"required"`
	Spd   *float64 `json:"spd" validate:"required"`
	Hdg   *float64 `json:"hdg" validate:"required"`
	Acc   *float64 `json:"acc" validate:"required"`
	Jrn   *int     `json:"jrn" validate:"required"`
	Line  *int     `json:"line" validate:"required"`
	Oday  *string  `json:"oday" validate:"required"`
	Start *string  `json:"start" validate:"required"`

	Dl   *int     `json:"dl"`
	Drst *int     `json:"drst"`
	Odo  *float64 `json:"odo"`
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
}

var validate = validator.New()

// Decode parses a raw feed message. The body must be a JSON object with a
// single envelope key (e.g. "VP") wrapping the position fields.
func Decode(raw []byte) (Ping, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Ping{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(envelope) != 1 {
		return Ping{}, fmt.Errorf("%w: expected one envelope key, got %d", ErrDecode, len(envelope))
	}

	var body json.RawMessage
	for _, v := range envelope {
		body = v
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Ping{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := validate.Struct(p); err != nil {
		return Ping{}, fmt.Errorf("%w: %s", ErrDecode, describe(err))
	}

	reportedAt, err := time.Parse(time.RFC3339, *p.Tst)
	if err != nil {
		return Ping{}, fmt.Errorf("%w: tst: %v", ErrDecode, err)
	}

	ping := Ping{
		VehicleNumber: *p.Veh,
		Designator:    *p.Desi,
		Direction:     *p.Dir,
		Operator:      *p.Oper,
		Journey:       *p.Jrn,
		Line:          *p.Line,
		OperatingDay:  *p.Oday,
		Start:         *p.Start,
		HeadingDeg:    *p.Hdg,
		SpeedKmh:      *p.Spd,
		Acceleration:  *p.Acc,
		ReportedAt:    reportedAt,
		ReportUnix:    *p.Tsi,
		Delay:         p.Dl,
		DoorStatus:    p.Drst,
		Odometer:      p.Odo,
	}
	// a fix outside WGS84 bounds is no fix
	if p.Lat != nil && p.Long != nil &&
		validate.Var(*p.Lat, "latitude") == nil && validate.Var(*p.Long, "longitude") == nil {
		ping.Location = At(*p.Long, *p.Lat)
	}

	return ping, nil
}

// describe flattens validator errors to "field:tag" pairs
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+":"+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
