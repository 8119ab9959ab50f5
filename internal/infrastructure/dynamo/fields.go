package dynamo

// DynamoDB attribute names used in key conditions and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID        = "user_id"
	fieldMessageID     = "message_id"
	fieldHandle        = "handle"
	fieldPhoneNumber   = "phone_number"
	fieldIsDeactivated = "is_deactivated"
	fieldAttempts      = "attempts"
	fieldUpdatedAt     = "updated_at"
	fieldExpiresAt     = "expires_at"

	indexPhoneNumber = "phone_number-index"
)
