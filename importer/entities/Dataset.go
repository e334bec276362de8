package entities

// Dataset is the full reference data set as read from the source files.
type Dataset struct {
	TreatmentItems []TreatmentItem
	DrugPrices     []DrugPrice
	Diseases       []DiseaseRecord
}
