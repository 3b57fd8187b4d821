package dto

// SetRelationRequest favorites or blocks a worker.
type SetRelationRequest struct {
	Kind string `json:"kind" validate:"required,oneof=favorite blocked"`
}
