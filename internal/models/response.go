package models

import "encoding/json"

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// DataSourceInfo is the only data-source shape that is ever serialized
// outward. It has no connection or credential fields at all, so nothing
// sensitive can leak through a response body.
type DataSourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DataSourceListResponse is returned by GET /api/v1/datasources
type DataSourceListResponse struct {
	DataSources []DataSourceInfo `json:"dataSources"`
}

// QueryResponse is the success shape of POST /api/v1/query. SQLQuery is
// exactly the statement that produced Data.
type QueryResponse struct {
	QueryID                 string           `json:"queryId"`
	NaturalLanguageResponse string           `json:"naturalLanguageResponse"`
	SQLQuery                string           `json:"sqlQuery"`
	VegaLiteSpec            json.RawMessage  `json:"vegaLiteSpec"`
	Data                    []map[string]any `json:"data"`
}
