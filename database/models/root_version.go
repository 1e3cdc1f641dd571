package models

import "time"

// RootVersionRecord remembers which output root version last matched a
// deployment, so later runs try it first. It is a hint only.
type RootVersionRecord struct {
	Deployment   string    `json:"deployment" bson:"deployment"`
	Version      string    `json:"version" bson:"version"`
	DiscoveredAt time.Time `json:"discovered_at" bson:"discovered_at"`
}
