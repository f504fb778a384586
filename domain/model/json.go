package model

import (
	"encoding/json"
	"math"
)

// encoding/json rejects NaN, but NaN is a legitimate value here: an
// undefined standard error or test statistic. These marshalers encode
// NaN as null so tables survive the trip through the API and the
// database unchanged in meaning.

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type coefficientJSON struct {
	Name     string   `json:"name"`
	Estimate float64  `json:"estimate"`
	StdErr   *float64 `json:"std_err"`
	ZValue   *float64 `json:"z_value"`
	PValue   *float64 `json:"p_value"`
}

func (c Coefficient) MarshalJSON() ([]byte, error) {
	return json.Marshal(coefficientJSON{
		Name:     c.Name,
		Estimate: c.Estimate,
		StdErr:   nullableFloat(c.StdErr),
		ZValue:   nullableFloat(c.ZValue),
		PValue:   nullableFloat(c.PValue),
	})
}

func (c *Coefficient) UnmarshalJSON(data []byte) error {
	var raw coefficientJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.Estimate = raw.Estimate
	c.StdErr = floatOrNaN(raw.StdErr)
	c.ZValue = floatOrNaN(raw.ZValue)
	c.PValue = floatOrNaN(raw.PValue)
	return nil
}

type aggregateRowJSON struct {
	Keys   []string `json:"keys"`
	Mean   float64  `json:"mean"`
	StdErr *float64 `json:"std_err"`
	Count  int      `json:"count"`
}

func (r AggregateRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(aggregateRowJSON{
		Keys:   r.Keys,
		Mean:   r.Mean,
		StdErr: nullableFloat(r.StdErr),
		Count:  r.Count,
	})
}

func (r *AggregateRow) UnmarshalJSON(data []byte) error {
	var raw aggregateRowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Keys = raw.Keys
	r.Mean = raw.Mean
	r.StdErr = floatOrNaN(raw.StdErr)
	r.Count = raw.Count
	return nil
}
