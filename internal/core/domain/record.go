package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ParseFailureMessage marks an extraction whose model output was not valid JSON.
const ParseFailureMessage = "Failed to parse JSON"

// Text is a model-produced leaf value. Numbers, booleans and null are
// coerced to strings so the record shape stays all-string. Arrays are
// joined with ", " and objects are kept as compact JSON.
type Text string

const listSeparator = ", "

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*t = Text(data)
		return nil
	case len(data) > 0 && data[0] == '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item != "" {
				parts = append(parts, string(item))
			}
		}
		*t = Text(strings.Join(parts, listSeparator))
		return nil
	case len(data) > 0 && data[0] == '{':
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return err
		}
		*t = Text(compact.String())
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			*t = Text(strconv.FormatInt(int64(f), 10))
			return nil
		}
		*t = Text(n.String())
		return nil
	}
}

type Demographics struct {
	MaritalStatus Text `json:"Marital_status"`
	Ethnicity     Text `json:"Ethnicity"`
	Occupation    Text `json:"Occupation"`
}

type PastMedicalHistory struct {
	MedicalHistory  Text `json:"Medical_history"`
	SurgicalHistory Text `json:"Surgical_history"`
}

type MedicationsAndAllergies struct {
	DrugAllergy                   Text `json:"Drug_allergy"`
	PrescribedMedications         Text `json:"Prescribed_medications"`
	RecentlyPrescribedMedications Text `json:"Recently_prescribed_medications"`
}

type MentalStateExamination struct {
	AppearanceAndBehavior Text `json:"Appearance_and_behavior"`
	SpeechAndThoughts     Text `json:"Speech_and_thoughts"`
	Mood                  Text `json:"Mood"`
	Thoughts              Text `json:"Thoughts"`
}

type PhysicalExamination struct {
	BloodPressure Text `json:"Blood_pressure"`
	PulseRate     Text `json:"Pulse_rate"`
	Temperature   Text `json:"Temperature"`
}

// StructuredClinicalRecord is the fixed-shape output of structured extraction.
// Missing information is always an empty string.
type StructuredClinicalRecord struct {
	PatientName         Text                    `json:"patient_name"`
	PatientDOB          Text                    `json:"patient_dob"`
	PatientGender       Text                    `json:"patient_gender"`
	Demographics        Demographics            `json:"Demographics_of_patient"`
	PastMedicalHistory  PastMedicalHistory      `json:"Past_medical_history"`
	Medications         MedicationsAndAllergies `json:"Current_medications_and_drug_allergies"`
	MentalState         MentalStateExamination  `json:"Mental_state_examination"`
	PhysicalExamination PhysicalExamination     `json:"Physical_examination"`
	Note                Text                    `json:"note"`
}

// ExtractionResult is either a parsed record or the parse-failure sentinel.
// Callers must check Failed before trusting Record.
type ExtractionResult struct {
	Record    *StructuredClinicalRecord
	Error     string
	RawOutput string
}

func (r ExtractionResult) Failed() bool {
	return r.Error != ""
}

func ParseFailure(raw string) ExtractionResult {
	return ExtractionResult{Error: ParseFailureMessage, RawOutput: raw}
}

type extractionFailureJSON struct {
	Error     string `json:"error"`
	RawOutput string `json:"raw_output"`
}

func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(extractionFailureJSON{Error: r.Error, RawOutput: r.RawOutput})
	}
	if r.Record == nil {
		return json.Marshal(StructuredClinicalRecord{})
	}
	return json.Marshal(r.Record)
}

func (r *ExtractionResult) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["error"]; ok {
		var failure extractionFailureJSON
		if err := json.Unmarshal(data, &failure); err != nil {
			return err
		}
		*r = ExtractionResult{Error: failure.Error, RawOutput: failure.RawOutput}
		return nil
	}
	var record StructuredClinicalRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	*r = ExtractionResult{Record: &record}
	return nil
}

// SamplingParams are passed through to the extraction model.
type SamplingParams struct {
	Temperature     float64  `json:"temperature"`
	TopP            float64  `json:"top_p"`
	TopK            int      `json:"top_k"`
	MaxTokens       int      `json:"max_tokens"`
	PresencePenalty float64  `json:"presence_penalty"`
	Stop            []string `json:"stop,omitempty"`
}

// ExtractionSampling mirrors the settings used for clinical extraction.
func ExtractionSampling() SamplingParams {
	return SamplingParams{
		Temperature:     0.2,
		TopP:            0.9,
		TopK:            0,
		MaxTokens:       4096,
		PresencePenalty: 1.15,
		Stop:            []string{"<|end_of_text|>", "<|eot_id|>"},
	}
}

// RecordRow is one structured output artifact prepared for export.
type RecordRow struct {
	OutputKey   string           `json:"output_key"`
	FileID      string           `json:"file_id"`
	DisplayName string           `json:"display_name"`
	OwnerID     string           `json:"owner_id"`
	ModifiedAt  time.Time        `json:"modified_at"`
	Output      ExtractionResult `json:"output"`
}
