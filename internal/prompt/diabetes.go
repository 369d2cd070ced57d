// Package prompt renders the instruction text sent to the AI provider for a
// diabetes risk assessment.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/diapredict/diapredict/internal/domain"
)

// Builder renders prompts for validated patient input. A Builder holds no
// mutable state and is safe for concurrent use.
type Builder struct {
	bmiMode string
	schema  *domain.OutputSchema
}

// NewBuilder creates a prompt builder. An empty or unknown mode falls back
// to domain.BMIModeComputed.
func NewBuilder(bmiMode string) *Builder {
	if bmiMode != domain.BMIModeFormula {
		bmiMode = domain.BMIModeComputed
	}
	return &Builder{
		bmiMode: bmiMode,
		schema:  domain.PredictionSchema(),
	}
}

// Mode returns the BMI handling mode
func (b *Builder) Mode() string {
	return b.bmiMode
}

// Schema returns the output contract the prompt declares
func (b *Builder) Schema() *domain.OutputSchema {
	return b.schema
}

// Build renders the prompt for input. The result depends only on input and
// the builder's BMI mode, so equal inputs produce byte-identical prompts.
func (b *Builder) Build(input domain.PatientInput) string {
	sections := []string{
		b.buildTask(),
		b.buildPatientData(input),
		b.buildBMI(input),
		b.buildHeuristics(),
		b.buildOutputContract(),
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func (b *Builder) buildTask() string {
	var task strings.Builder

	task.WriteString("Act as an expert medical AI specializing in diabetes risk assessment.\n")
	task.WriteString("Analyze the following patient data to predict the probability of a positive diabetes diagnosis.\n")
	task.WriteString("Consider common risk factors associated with these metrics.")

	return task.String()
}

func (b *Builder) buildPatientData(input domain.PatientInput) string {
	var data strings.Builder

	data.WriteString("Patient Data:\n")
	data.WriteString(fmt.Sprintf("- Age: %d years\n", input.Age))
	data.WriteString(fmt.Sprintf("- Blood Group: %s\n", input.BloodGroup))
	data.WriteString(fmt.Sprintf("- Gender: %s\n", input.Gender))
	data.WriteString(fmt.Sprintf("- Weight: %s kg\n", formatNumber(input.Weight)))
	data.WriteString(fmt.Sprintf("- Height: %d cm", input.Height))

	return data.String()
}

func (b *Builder) buildBMI(input domain.PatientInput) string {
	var bmi strings.Builder

	bmi.WriteString("Calculate the Body Mass Index (BMI) using the formula: weight (kg) / (height (m))^2. ")
	bmi.WriteString("Height in meters is height (cm) / 100.\n")

	switch b.bmiMode {
	case domain.BMIModeFormula:
		bmi.WriteString(fmt.Sprintf("BMI = %s / ((%d / 100) ** 2)", formatNumber(input.Weight), input.Height))
	default:
		bmi.WriteString(fmt.Sprintf("Height: %s m\n", formatNumber(input.HeightMeters())))
		bmi.WriteString(fmt.Sprintf("BMI = %s", strconv.FormatFloat(input.BMI(), 'f', 1, 64)))
	}

	return bmi.String()
}

func (b *Builder) buildHeuristics() string {
	var h strings.Builder

	h.WriteString("Based on the age, gender, and calculated BMI, estimate the probability of diabetes.\n")
	h.WriteString("- Higher age generally increases risk.\n")
	h.WriteString("- Higher BMI significantly increases risk (e.g., BMI > 25 increases risk, BMI > 30 significantly increases risk).\n")
	h.WriteString("- Consider gender nuances if relevant medical literature suggests. ")
	h.WriteString("Blood group is less directly correlated but include it in context.")

	return h.String()
}

func (b *Builder) buildOutputContract() string {
	var out strings.Builder

	out.WriteString("Output:\n")
	out.WriteString("Return ONLY a valid JSON object containing:\n")

	for i, field := range b.schema.Fields {
		out.WriteString(fmt.Sprintf("%d. '%s': ", i+1, field.Name))
		switch field.Name {
		case "probability":
			out.WriteString("A numerical value between 0.0 and 1.0 representing the likelihood of diabetes.\n")
		case "confidence":
			out.WriteString(fmt.Sprintf("A string indicating your confidence in the prediction (%s). ", quoteLabels(field.Enum)))
			out.WriteString("Base confidence on how strongly the input factors point towards or against diabetes according to general medical knowledge. ")
			out.WriteString("For example, very high BMI and advanced age might warrant 'High' confidence for a high probability. ")
			out.WriteString("Normal BMI and young age might warrant 'High' confidence for a low probability. ")
			out.WriteString("Ambiguous cases get 'Medium' or 'Low'.\n")
		default:
			out.WriteString(field.Description + "\n")
		}
	}

	out.WriteString("\nExample Output Format:\n")
	out.WriteString("{\n  \"probability\": 0.65,\n  \"confidence\": \"Medium\"\n}")

	return out.String()
}

// quoteLabels renders labels as 'High', 'Medium', or 'Low'
func quoteLabels(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "'" + l + "'"
	}
	if len(quoted) < 2 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
}

// formatNumber renders a float with the shortest exact representation so
// 75.5 stays 75.5 and 80 stays 80
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
