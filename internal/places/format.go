package places

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// FormatRecords renders business records into reply text, one four-line block
// per record, each block ending with a newline:
//
//	Name: Acme Cafe
//	Address: 1 Main St
//	Hours: Open
//	Rating: 4.5
//
// A missing rating renders as "N/A". FormatRecords is a pure function and is
// only invoked with a non-empty slice; the empty-result wording belongs to
// the caller.
func FormatRecords(records []models.BusinessRecord) string {
	var b strings.Builder
	for _, r := range records {
		rating := "N/A"
		if r.Rating != nil {
			rating = strconv.FormatFloat(*r.Rating, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "Name: %s\nAddress: %s\nHours: %s\nRating: %s\n", r.Name, r.Address, r.Open, rating)
	}
	return b.String()
}
