package domain

// Confidence is the coarse indicator of how strongly the model commits to
// its probability estimate
type Confidence string

// Confidence labels accepted in a model reply
const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ConfidenceLabels lists every accepted label in presentation order
var ConfidenceLabels = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// Valid reports whether c is one of the three accepted labels
func (c Confidence) Valid() bool {
	for _, v := range ConfidenceLabels {
		if c == v {
			return true
		}
	}
	return false
}

// PredictionOutput is the validated result returned to the caller
type PredictionOutput struct {
	Probability float64    `json:"probability"`
	Confidence  Confidence `json:"confidence"`
}

// SchemaField describes one field of the output contract sent to the provider
type SchemaField struct {
	Name        string
	Type        string // "number" or "string"
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// OutputSchema is a provider-neutral description of the reply shape the
// model must produce. Adapters translate it into their native schema type
// or into an instruction for text-only providers.
type OutputSchema struct {
	Name   string
	Fields []SchemaField
}

// FieldNames returns the field names in declaration order
func (s *OutputSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// PredictionSchema returns the output contract for diabetes predictions
func PredictionSchema() *OutputSchema {
	lo, hi := 0.0, 1.0
	labels := make([]string, 0, len(ConfidenceLabels))
	for _, c := range ConfidenceLabels {
		labels = append(labels, string(c))
	}

	return &OutputSchema{
		Name: "diabetes_prediction",
		Fields: []SchemaField{
			{
				Name:        "probability",
				Type:        "number",
				Description: "The probability of a positive diabetes diagnosis (0 to 1).",
				Minimum:     &lo,
				Maximum:     &hi,
			},
			{
				Name:        "confidence",
				Type:        "string",
				Description: "A confidence level indicator (High, Medium, Low).",
				Enum:        labels,
			},
		},
	}
}
