package entities

// DiseaseRecord describes a disease and the treatment and drug codes commonly
// associated with it. The code lists are stored as ';' delimited text and
// decoded into CodeList when the row is scanned.
type DiseaseRecord struct {
	DiseaseCode      string   `json:"disease_code" db:"disease_code"`
	DiseaseName      string   `json:"disease_name" db:"disease_name"`
	Description      string   `json:"description" db:"description"`
	Level            string   `json:"level" db:"level"`
	TreatmentSummary string   `json:"treatment" db:"treatment_summary"`
	TreatmentCodes   CodeList `json:"treatment_codes" db:"treatment_codes"`
	DrugSummary      string   `json:"recommended_drugs" db:"drug_summary"`
	DrugCodes        CodeList `json:"drug_codes" db:"drug_codes"`
}
