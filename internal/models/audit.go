package models

import (
	"strconv"
	"time"
)

// AuditRecord is one row appended to an audit log table.
type AuditRecord struct {
	Table     string
	Timestamp time.Time
	UserID    int64
	UserName  string
	Action    string
	Details   string
}

// Row renders the record as a sheet row. The timestamp uses the same
// human-readable layout as the rest of the log tables.
func (r AuditRecord) Row() []string {
	return []string{
		r.Timestamp.Format("02.01.2006 15:04:05"),
		strconv.FormatInt(r.UserID, 10),
		r.UserName,
		r.Action,
		r.Details,
	}
}
