package domain

// ServerStats is the learned state for a single server.
type ServerStats struct {
	Server     string  `json:"server" dynamodbav:"server"`
	Quality    float64 `json:"quality" dynamodbav:"quality"`
	Selections int64   `json:"selections" dynamodbav:"selections"`
}

// QualitySnapshot - persisted estimator state for one area (a group of
// clients sharing the same view of the server pool)
type QualitySnapshot struct {
	Area    string        `json:"area" dynamodbav:"area"` // Partition Key
	Policy  string        `json:"policy" dynamodbav:"policy"`
	Round   uint64        `json:"round" dynamodbav:"round"`
	Backlog float64       `json:"backlog" dynamodbav:"backlog"`
	Servers []ServerStats `json:"servers" dynamodbav:"servers"`
}
