package eli

// Properties are the fields of an imagery source feature the watchdog
// reads. Unknown properties are ignored.
type Properties struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Type                 string             `json:"type"`
	URL                  string             `json:"url"`
	MinZoom              *int               `json:"min_zoom,omitempty"`
	MaxZoom              *int               `json:"max_zoom,omitempty"`
	LicenseURL           string             `json:"license_url,omitempty"`
	PrivacyPolicyURL     string             `json:"privacy_policy_url,omitempty"`
	Category             string             `json:"category,omitempty"`
	AvailableProjections []string           `json:"available_projections,omitempty"`
	EndDate              string             `json:"end_date,omitempty"`
	CustomHTTPHeaders    *CustomHTTPHeaders `json:"custom-http-headers,omitempty"`
}

// CustomHTTPHeaders is the single extra header some tile servers require.
type CustomHTTPHeaders struct {
	Name  string `json:"header-name"`
	Value string `json:"header-value"`
}
