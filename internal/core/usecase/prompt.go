package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const clinicalRecordSchema = `{
    "type": "object",
    "properties": {
        "patient_name": { "type": "string" },
        "patient_dob": { "type": "string", "pattern": "^\\d{2}/\\d{2}/\\d{2}$" },
        "patient_gender": { "type": "string" },
        "Demographics_of_patient": {
            "type": "object",
            "properties": {
                "Marital_status": { "type": "string" },
                "Ethnicity": { "type": "string" },
                "Occupation": { "type": "string" }
            }
        },
        "Past_medical_history": {
            "type": "object",
            "properties": {
                "Medical_history": { "type": "string" },
                "Surgical_history": { "type": "string" }
            }
        },
        "Current_medications_and_drug_allergies": {
            "type": "object",
            "properties": {
                "Drug_allergy": { "type": "string" },
                "Prescribed_medications": { "type": "string" },
                "Recently_prescribed_medications": { "type": "string" }
            }
        },
        "Mental_state_examination": {
            "type": "object",
            "properties": {
                "Appearance_and_behavior": { "type": "string" },
                "Speech_and_thoughts": { "type": "string" },
                "Mood": { "type": "string" },
                "Thoughts": { "type": "string" }
            }
        },
        "Physical_examination": {
            "type": "object",
            "properties": {
                "Blood_pressure": { "type": "string" },
                "Pulse_rate": { "type": "string" },
                "Temperature": { "type": "string" }
            }
        },
        "note": { "type": "string" }
    },
    "required": [
        "patient_name",
        "patient_gender",
        "Demographics_of_patient",
        "Past_medical_history",
        "Current_medications_and_drug_allergies",
        "Mental_state_examination",
        "Physical_examination",
        "note"
    ]
}`

const clinicalRecordExample = `{
    "patient_name": "Tony Stark",
    "patient_dob": "15/04/1985",
    "patient_gender": "Male",
    "Demographics_of_patient": {
        "Marital_status": "Married",
        "Ethnicity": "Vietnamese",
        "Occupation": "Software Engineer"
    },
    "Past_medical_history": {
        "Medical_history": "Hypertension since 2020",
        "Surgical_history": "Appendectomy 2015"
    },
    "Current_medications_and_drug_allergies": {
        "Drug_allergy": "None",
        "Prescribed_medications": "Lisinopril 10mg daily",
        "Recently_prescribed_medications": "None"
    },
    "Mental_state_examination": {
        "Appearance_and_behavior": "Alert and oriented",
        "Speech_and_thoughts": "Clear and coherent",
        "Mood": "Stable",
        "Thoughts": "No abnormalities"
    },
    "Physical_examination": {
        "Blood_pressure": "120/80",
        "Pulse_rate": "72",
        "Temperature": "36.8C"
    },
    "note": "Dr. Jane Foster noted patient is responding well to treatment. Follow-up in 3 months."
}`

// RenderTranscript writes one "speaker: text" line per turn.
func RenderTranscript(turns []domain.TranscriptTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(turn.Speaker)
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildExtractionPrompt assembles the structured extraction prompt. Which
// speaker is the patient is left to the model.
func BuildExtractionPrompt(turns []domain.TranscriptTurn, displayName string) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant that summarizes a medical transcript into a structured JSON format.\n")
	b.WriteString("Analyze the medical transcript provided. If multiple speakers are present, focus on summarizing patient-related information only from the speaker discussing patient details.\n\n")
	b.WriteString("Schema Format:\n")
	b.WriteString(clinicalRecordSchema)
	b.WriteString("\n\nExample Output:\n")
	b.WriteString(clinicalRecordExample)
	b.WriteString("\n\n")
	if name := strings.TrimSpace(displayName); name != "" {
		fmt.Fprintf(&b, "You must use %s as the value of \"patient_name\" field in the JSON schema.\n\n", name)
	}
	b.WriteString("If the medical transcript is in a language other than English, provide all JSON values and only the values in that same language. You must not modify the JSON field names in English.\n\n")
	b.WriteString("If no patient-related information is present, use empty strings (\"\") for any missing information adhering to the JSON schema.\n")
	b.WriteString("Ensure the use of explicit information and recognized medical terminology.\n")
	b.WriteString("Follow the JSON schema strictly without making assumptions about unspecified details.\n")
	b.WriteString("Format your response exactly like this example, maintaining all fields.\n")
	b.WriteString("You must only return the JSON schema. Do not include any additional information.\n\n")
	b.WriteString("Medical Transcript:\n")
	b.WriteString(RenderTranscript(turns))
	return b.String()
}
