package accesspoint

import "time"

// AccessPoint is a physical entry point managed by a controller module.
type AccessPoint struct {
	ID               int64     `json:"id"`
	Alias            string    `json:"alias"`
	Description      string    `json:"description"`
	ControllerModule string    `json:"controller_module"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
