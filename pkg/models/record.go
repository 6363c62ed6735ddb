package models

import "time"

// WriteRecord represents a single time-series point assembled from one event.
// Fields and tags live in separate namespaces, so a field and a tag may share a name.
type WriteRecord struct {
	Measurement string           `json:"measurement"`
	Time        time.Time        `json:"time"`
	Fields      map[string]Value `json:"fields"`
	Tags        map[string]Value `json:"tags"`
}

// NewWriteRecord creates an empty record shell for the given measurement and time
func NewWriteRecord(measurement string, t time.Time) *WriteRecord {
	return &WriteRecord{
		Measurement: measurement,
		Time:        t,
		Fields:      make(map[string]Value),
		Tags:        make(map[string]Value),
	}
}

// AddField sets a field value, replacing any previous value under the same name
func (r *WriteRecord) AddField(name string, v Value) {
	r.Fields[name] = v
}

// AddTag sets a tag value, replacing any previous value under the same name
func (r *WriteRecord) AddTag(name string, v Value) {
	r.Tags[name] = v
}
