package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRecordCoercesNonStringLeaves(t *testing.T) {
	raw := `{
		"patient_name": "Jane",
		"patient_dob": null,
		"patient_gender": true,
		"Physical_examination": {"Blood_pressure": "120/80", "Pulse_rate": 72, "Temperature": 98.6}
	}`
	var record StructuredClinicalRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.PatientDOB != "" || record.PatientGender != "true" {
		t.Fatalf("unexpected coercion: dob=%q gender=%q", record.PatientDOB, record.PatientGender)
	}
	if record.PhysicalExamination.PulseRate != "72" || record.PhysicalExamination.Temperature != "98.6" {
		t.Fatalf("unexpected numbers: %+v", record.PhysicalExamination)
	}
	if record.Demographics.Occupation != "" {
		t.Fatalf("expected missing leaf to be empty")
	}
}

func TestRecordAcceptsListAndObjectLeaves(t *testing.T) {
	raw := `{
		"Current_medications_and_drug_allergies": {
			"Prescribed_medications": ["Lisinopril", "Aspirin", 81, null],
			"Drug_allergy": []
		},
		"Physical_examination": {"Blood_pressure": {"systolic": 120, "diastolic": 80}}
	}`
	var record StructuredClinicalRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := record.Medications.PrescribedMedications; got != "Lisinopril, Aspirin, 81" {
		t.Fatalf("unexpected joined list %q", got)
	}
	if record.Medications.DrugAllergy != "" {
		t.Fatalf("expected empty list to be empty, got %q", record.Medications.DrugAllergy)
	}
	if got := record.PhysicalExamination.BloodPressure; got != `{"systolic":120,"diastolic":80}` {
		t.Fatalf("unexpected object leaf %q", got)
	}
}

func TestExtractionResultSentinelShape(t *testing.T) {
	data, err := json.Marshal(ParseFailure("not json"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"error":"Failed to parse JSON","raw_output":"not json"}` {
		t.Fatalf("unexpected sentinel: %s", data)
	}

	var back ExtractionResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Failed() || back.RawOutput != "not json" {
		t.Fatalf("unexpected decoded sentinel: %+v", back)
	}
}

func TestExtractionResultRecordShape(t *testing.T) {
	result := ExtractionResult{Record: &StructuredClinicalRecord{PatientName: "Jane"}}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"patient_name":"Jane"`, `"Mental_state_examination"`, `"note":""`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in %s", key, data)
		}
	}
	if strings.Contains(string(data), `"error"`) {
		t.Fatalf("record must not carry error marker: %s", data)
	}
}
