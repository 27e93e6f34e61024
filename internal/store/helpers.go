package store

import (
	"database/sql"
	"fmt"

	"github.com/willmcdaniel/BizFinder/internal/models"
)

// scanSearchRecord scans a SearchRecord from sql.Rows.
func scanSearchRecord(rows *sql.Rows) (models.SearchRecord, error) {
	var rec models.SearchRecord
	err := rows.Scan(&rec.ID, &rec.SenderID, &rec.Keyword, &rec.Address, &rec.ResultCount, &rec.Outcome, &rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("scan search record failed: %w", err)
	}
	return rec, nil
}
