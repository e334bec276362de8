package entities

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// CodeSeparator separates the codes of a stored code list.
const CodeSeparator = ";"

// CodeList is an ordered list of codes referenced by a disease record.
// Position matters: it is kept exactly as stored, empty entries included.
type CodeList []string

// ParseCodeList splits stored delimited text into a CodeList. Empty entries
// produced by doubled or trailing separators are kept. Empty text yields an
// empty list.
func ParseCodeList(text string) CodeList {
	if text == "" {
		return CodeList{}
	}
	return CodeList(strings.Split(text, CodeSeparator))
}

// String joins the list back into its stored form.
func (c CodeList) String() string {
	return strings.Join(c, CodeSeparator)
}

// Scan implements sql.Scanner so code lists are decoded at the store boundary.
func (c *CodeList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = CodeList{}
	case string:
		*c = ParseCodeList(v)
	case []byte:
		*c = ParseCodeList(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CodeList", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (c CodeList) Value() (driver.Value, error) {
	return c.String(), nil
}
