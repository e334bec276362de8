package importer

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/medpricing/medical-data-service/importer/entities"
)

// Header names of the published files
var (
	treatmentItemColumns = []column{
		col("项目编码"),
		col("项目名称"),
		col("计价单位"),
		col("项目单价（元）", "项目单价", "项目单价(元)"),
	}

	drugPriceColumns = []column{
		col("编号"),
		col("药品名称"),
		col("规格"),
		col("产地"),
		col("价格"),
	}

	diseaseColumns = []column{
		col("疾病编码"),
		col("疾病名称"),
		col("疾病描述"),
		col("疾病分级"),
		col("常用诊疗"),
		col("常用诊疗编号"),
		col("常用药品"),
		col("常用药品编号"),
	}
)

// parsePrice parses a price cell. An empty cell is a zero price.
func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

func parseTreatmentItems(path string) ([]entities.TreatmentItem, error) {
	t, err := readTable(path, treatmentItemColumns)
	if err != nil {
		return nil, err
	}

	items := make([]entities.TreatmentItem, 0, len(t.rows))
	for _, f := range t.rows {
		if strings.TrimSpace(f[0]) == "" {
			t.skippedFormatErrors++
			continue
		}

		price, err := parsePrice(f[3])
		if err != nil {
			t.skippedFormatErrors++
			continue
		}

		items = append(items, entities.TreatmentItem{
			ItemCode: f[0],
			ItemName: f[1],
			Unit:     f[2],
			Price:    price,
		})
	}

	t.logStats(len(items))
	return items, nil
}

func parseDrugPrices(path string) ([]entities.DrugPrice, error) {
	t, err := readTable(path, drugPriceColumns)
	if err != nil {
		return nil, err
	}

	drugs := make([]entities.DrugPrice, 0, len(t.rows))
	for _, f := range t.rows {
		if strings.TrimSpace(f[0]) == "" {
			t.skippedFormatErrors++
			continue
		}

		price, err := parsePrice(f[4])
		if err != nil {
			t.skippedFormatErrors++
			continue
		}

		drugs = append(drugs, entities.DrugPrice{
			DrugCode:      f[0],
			DrugName:      f[1],
			Specification: f[2],
			Manufacturer:  f[3],
			Price:         price,
		})
	}

	t.logStats(len(drugs))
	return drugs, nil
}

func parseDiseases(path string) ([]entities.DiseaseRecord, error) {
	t, err := readTable(path, diseaseColumns)
	if err != nil {
		return nil, err
	}

	diseases := make([]entities.DiseaseRecord, 0, len(t.rows))
	for _, f := range t.rows {
		if strings.TrimSpace(f[1]) == "" {
			t.skippedFormatErrors++
			continue
		}

		diseases = append(diseases, entities.DiseaseRecord{
			DiseaseCode:      f[0],
			DiseaseName:      f[1],
			Description:      f[2],
			Level:            f[3],
			TreatmentSummary: f[4],
			TreatmentCodes:   entities.ParseCodeList(f[5]),
			DrugSummary:      f[6],
			DrugCodes:        entities.ParseCodeList(f[7]),
		})
	}

	t.logStats(len(diseases))
	return diseases, nil
}
