package filter

import "inventory_watch/models"

// Criteria is applied once per run over the merged records of all targets.
type Criteria struct {
	MinYear int
}

// Accept keeps records at or above MinYear. Records with no known year are
// accepted.
func (c Criteria) Accept(rec models.VehicleRecord) bool {
	if rec.Year == nil {
		return true
	}
	return *rec.Year >= c.MinYear
}

// Apply returns the accepted records in input order and the count rejected.
func (c Criteria) Apply(records []models.VehicleRecord) ([]models.VehicleRecord, int) {
	accepted := make([]models.VehicleRecord, 0, len(records))
	for _, rec := range records {
		if c.Accept(rec) {
			accepted = append(accepted, rec)
		}
	}
	return accepted, len(records) - len(accepted)
}
