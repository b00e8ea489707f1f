package dto

type HealthResponse struct {
	Status     string `json:"status"`
	Reconciler string `json:"reconciler,omitempty"`
}
