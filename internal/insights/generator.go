// Package insights turns birth details into a personality reading.
package insights

import (
	"context"
	"errors"

	"pathlet/internal/validation"
)

// ErrMissingDetails is returned when Generate is called without birth details.
var ErrMissingDetails = errors.New("birth details are required")

// Generator produces insights for a person.
type Generator interface {
	Generate(ctx context.Context, details *BirthDetails) (*Insights, error)
}

// Validate checks details the way the birth details form does.
func Validate(details *BirthDetails) error {
	if details == nil {
		return ErrMissingDetails
	}
	return validation.Struct(details)
}

// StaticGenerator returns the same placeholder reading for everyone.
type StaticGenerator struct{}

// NewStaticGenerator creates a StaticGenerator.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (StaticGenerator) Generate(ctx context.Context, details *BirthDetails) (*Insights, error) {
	if err := Validate(details); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Insights{
		Astrology: Astrology{
			SunSign:    "Leo",
			MoonSign:   "Pisces",
			RisingSign: "Scorpio",
		},
		HumanDesign: HumanDesign{
			EnergyType: "Generator",
			Strategy:   "Wait to Respond",
			Authority:  "Sacral",
		},
		Numerology: Numerology{
			LifePath:       7,
			DestinyNumber:  22,
			SoulUrgeNumber: 9,
		},
	}, nil
}
