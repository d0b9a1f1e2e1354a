package models

// Mail roles used for logging and provider headers.
const (
	MailRoleInternalAlert = "internal_alert"
	MailRoleClientAck     = "client_ack"
	MailRoleTest          = "test"
)

// Mail is a single outbound HTML email handed to the mail-sending capability.
type Mail struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string

	// Role and LeadID only travel into logs and X- headers.
	Role   string
	LeadID string
}
