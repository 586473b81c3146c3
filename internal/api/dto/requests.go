package dto

// AttachmentPayload is an inline attachment in a create request.
// Content is base64-decoded by encoding/json into the byte slice.
type AttachmentPayload struct {
	Filename    string `json:"filename" validate:"required"`
	Content     []byte `json:"content" validate:"required"`
	ContentType string `json:"content_type"`
}

// CreateMessageRequest is the JSON body for creating a message, both on
// the public contact endpoint and the admin create endpoint.
type CreateMessageRequest struct {
	From        string              `json:"from"`
	To          []string            `json:"to" validate:"required,min=1,dive,required"`
	CC          []string            `json:"cc" validate:"omitempty,dive,required"`
	BCC         []string            `json:"bcc" validate:"omitempty,dive,required"`
	Subject     string              `json:"subject" validate:"required"`
	Body        string              `json:"body" validate:"required_without=HTMLBody"`
	HTMLBody    string              `json:"html_body"`
	Attachments []AttachmentPayload `json:"attachments" validate:"omitempty,dive"`
	Type        string              `json:"type"`
	Priority    string              `json:"priority"`
	MaxRetries  int                 `json:"max_retries" validate:"gte=0"`
	ScheduledAt string              `json:"scheduled_at"` // RFC 3339
	Metadata    map[string]string   `json:"metadata"`
}

// CreatePermissionRequest is the JSON body for granting a permission.
type CreatePermissionRequest struct {
	UserID      string            `json:"user_id" validate:"required,uuid"`
	Action      string            `json:"action" validate:"required"`
	Resource    string            `json:"resource" validate:"required"`
	Title       string            `json:"title" validate:"required"`
	Description string            `json:"description"`
	IsActive    *bool             `json:"is_active"`
	Metadata    map[string]string `json:"metadata"`
}

// UpdatePermissionRequest is the JSON body for updating a permission.
// Nil pointers leave the corresponding field unchanged.
type UpdatePermissionRequest struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	IsActive    *bool             `json:"is_active"`
	Metadata    map[string]string `json:"metadata"`
}
