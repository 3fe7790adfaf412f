package model

import "time"

// Site is a physical monitoring station.
type Site struct {
	SiteKey   string   `json:"site_key"`
	State     string   `json:"state"`
	County    string   `json:"county"`
	SiteNum   int64    `json:"site_num"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Pollutant is a parameter code lookup row. Name and Unit are populated out-of-band.
type Pollutant struct {
	ParameterCode string `json:"parameter_code"`
	Name          string `json:"name,omitempty"`
	Unit          string `json:"unit,omitempty"`
}

// DisplayName returns the pollutant name, falling back to the parameter code.
func (p Pollutant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ParameterCode
}

// ShapeletRow is a persisted shapelet joined with its site, as read back for export.
type ShapeletRow struct {
	ID             int64     `json:"id"`
	DatasetKey     string    `json:"dataset_key"`
	ShapeletID     int64     `json:"shapelet_id"`
	SiteKey        string    `json:"site_key"`
	State          *string   `json:"state,omitempty"`
	County         *string   `json:"county,omitempty"`
	SiteNum        *int64    `json:"site_num,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	ParameterCode  *string   `json:"parameter_code,omitempty"`
	Year           int       `json:"year"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	LengthDays     int       `json:"length_days"`
	PatternType    *string   `json:"pattern_type,omitempty"`
	DataType       *string   `json:"data_type,omitempty"`
	Quality        *float64  `json:"quality,omitempty"`
	ShapeletValues []float64 `json:"shapelet_values"`
	SourceFile     *string   `json:"source_file,omitempty"`
}

// SiteSummary aggregates shapelet statistics for one site.
type SiteSummary struct {
	SiteKey       string   `json:"site_key"`
	State         string   `json:"state"`
	County        string   `json:"county"`
	SiteNum       int64    `json:"site_num"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	ShapeletCount int64    `json:"shapelet_count"`
	AvgQuality    *float64 `json:"avg_quality,omitempty"`
	MinQuality    *float64 `json:"min_quality,omitempty"`
	MaxQuality    *float64 `json:"max_quality,omitempty"`
	EarliestDate  string   `json:"earliest_date"`
	LatestDate    string   `json:"latest_date"`
	Pollutants    string   `json:"pollutants"`
	Years         string   `json:"years"`
}

// HasLocation reports whether the summary carries usable coordinates.
func (s SiteSummary) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}
