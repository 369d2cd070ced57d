package domain

// Gender represents the accepted gender values for a prediction request
type Gender string

// Gender values accepted by the validator
const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Genders lists every accepted gender in presentation order
var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

// Valid reports whether g is one of the accepted gender values
func (g Gender) Valid() bool {
	for _, v := range Genders {
		if g == v {
			return true
		}
	}
	return false
}

// Bounds for patient attributes. Values outside these ranges are rejected
// before any AI call is made.
const (
	MinAge    = 1
	MaxAge    = 120
	MinWeight = 1.0
	MaxWeight = 500.0
	MinHeight = 50
	MaxHeight = 250
)

// PatientInput holds the validated patient attributes submitted for a
// diabetes risk assessment. Values are only produced by the validation
// package and are not modified afterwards.
type PatientInput struct {
	Age        int     `json:"age"`
	BloodGroup string  `json:"bloodGroup"`
	Gender     Gender  `json:"gender"`
	Weight     float64 `json:"weight"`
	Height     int     `json:"height"`
}

// HeightMeters returns the height converted from centimeters to meters
func (p PatientInput) HeightMeters() float64 {
	return float64(p.Height) / 100
}

// BMI returns weight_kg / height_m^2
func (p PatientInput) BMI() float64 {
	h := p.HeightMeters()
	if h <= 0 {
		return 0
	}
	return p.Weight / (h * h)
}

// AsMap returns the input in its wire representation, suitable for
// re-validation by callers that hold typed values.
func (p PatientInput) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"age":        p.Age,
		"bloodGroup": p.BloodGroup,
		"gender":     string(p.Gender),
		"weight":     p.Weight,
		"height":     p.Height,
	}
}
