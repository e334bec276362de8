package data

import "fmt"

// Table names and column sets of the reference data. Storage columns keep the
// names of the published source files; lookups rename them with AS to the
// names used in API responses.
const (
	treatmentItemTable = "publicize_cost"
	drugPriceTable     = "publicize_drug_price"
	diseaseTable       = "disease_info"

	treatmentItemKey = `"项目编码"`
	drugPriceKey     = `"编号"`
	diseaseKey       = `"疾病名称"`
)

var schemaStatements = []string{
	`CREATE TABLE ` + treatmentItemTable + ` (
		"项目编码" VARCHAR(64),
		"项目名称" VARCHAR(255),
		"计价单位" VARCHAR(64),
		"项目单价" DECIMAL(14,4)
	)`,
	`CREATE TABLE ` + drugPriceTable + ` (
		"编号" VARCHAR(64),
		"药品名称" VARCHAR(255),
		"规格" VARCHAR(255),
		"产地" VARCHAR(255),
		"价格" DECIMAL(14,4)
	)`,
	`CREATE TABLE ` + diseaseTable + ` (
		"疾病编码" VARCHAR(64),
		"疾病名称" VARCHAR(255),
		"疾病描述" TEXT,
		"疾病分级" VARCHAR(64),
		"常用诊疗" TEXT,
		"常用诊疗编号" TEXT,
		"常用药品" TEXT,
		"常用药品编号" TEXT
	)`,
	`CREATE INDEX idx_publicize_cost_code ON ` + treatmentItemTable + ` (` + treatmentItemKey + `)`,
	`CREATE INDEX idx_publicize_drug_price_code ON ` + drugPriceTable + ` (` + drugPriceKey + `)`,
	`CREATE INDEX idx_disease_info_name ON ` + diseaseTable + ` (` + diseaseKey + `)`,
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS ` + treatmentItemTable,
	`DROP TABLE IF EXISTS ` + drugPriceTable,
	`DROP TABLE IF EXISTS ` + diseaseTable,
}

const treatmentItemColumns = `
	COALESCE("项目编码", '') AS item_code,
	COALESCE("项目名称", '') AS item_name,
	COALESCE("计价单位", '') AS unit,
	COALESCE("项目单价", 0) AS price`

const drugPriceColumns = `
	COALESCE("编号", '') AS drug_code,
	COALESCE("药品名称", '') AS drug_name,
	COALESCE("规格", '') AS specification,
	COALESCE("产地", '') AS manufacturer,
	COALESCE("价格", 0) AS price`

const diseaseColumns = `
	COALESCE("疾病编码", '') AS disease_code,
	COALESCE("疾病名称", '') AS disease_name,
	COALESCE("疾病描述", '') AS description,
	COALESCE("疾病分级", '') AS level,
	COALESCE("常用诊疗", '') AS treatment_summary,
	COALESCE("常用诊疗编号", '') AS treatment_codes,
	COALESCE("常用药品", '') AS drug_summary,
	COALESCE("常用药品编号", '') AS drug_codes`

const (
	insertTreatmentItem = `INSERT INTO ` + treatmentItemTable +
		` ("项目编码", "项目名称", "计价单位", "项目单价") VALUES (?, ?, ?, ?)`
	insertDrugPrice = `INSERT INTO ` + drugPriceTable +
		` ("编号", "药品名称", "规格", "产地", "价格") VALUES (?, ?, ?, ?, ?)`
	insertDisease = `INSERT INTO ` + diseaseTable +
		` ("疾病编码", "疾病名称", "疾病描述", "疾病分级", "常用诊疗", "常用诊疗编号", "常用药品", "常用药品编号")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

func selectAll(columns, table string) string {
	return fmt.Sprintf("SELECT %s FROM %s", columns, table)
}

// selectIn returns a query with a single IN (?) placeholder for sqlx.In to expand.
func selectIn(columns, table, key string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?)", columns, table, key)
}

func countRows(table string) string {
	return "SELECT COUNT(*) FROM " + table
}
