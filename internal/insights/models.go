package insights

import "time"

// DateLayout and TimeLayout are the accepted formats of BirthDetails.Date and .Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// BirthDetails is what the user enters before a reading is generated
type BirthDetails struct {
	Date    string `json:"date" binding:"required,datetime=2006-01-02" message:"Invalid date"`
	Time    string `json:"time" binding:"required,datetime=15:04" message:"Invalid time format"`
	City    string `json:"city" binding:"required,min=2" message:"City must be at least 2 characters"`
	Country string `json:"country" binding:"required,min=2" message:"Country must be at least 2 characters"`
}

// BornAt combines Date and Time in UTC. It assumes the details are valid.
func (b BirthDetails) BornAt() (time.Time, error) {
	return time.Parse(DateLayout+" "+TimeLayout, b.Date+" "+b.Time)
}

// Astrology holds the chart placements
type Astrology struct {
	SunSign    string `json:"sun_sign"`
	MoonSign   string `json:"moon_sign"`
	RisingSign string `json:"rising_sign"`
}

// HumanDesign holds the body graph summary
type HumanDesign struct {
	EnergyType string `json:"energy_type"`
	Strategy   string `json:"strategy"`
	Authority  string `json:"authority"`
}

// Numerology holds the core numbers
type Numerology struct {
	LifePath       int `json:"life_path"`
	DestinyNumber  int `json:"destiny_number"`
	SoulUrgeNumber int `json:"soul_urge_number"`
}

// Insights is a generated reading
type Insights struct {
	Astrology   Astrology   `json:"astrology"`
	HumanDesign HumanDesign `json:"human_design"`
	Numerology  Numerology  `json:"numerology"`
}
