package domain

// CodeLength is the number of single-digit boxes in an OTP.
const CodeLength = 6

// VerificationRecord stores a dispatched OTP until it is consumed or expires.
// PK: handle. ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type VerificationRecord struct {
	Handle      string `dynamodbav:"handle"`
	PhoneNumber string `dynamodbav:"phone_number"`
	CodeHash    string `dynamodbav:"code_hash"`
	Attempts    int    `dynamodbav:"attempts"`
	ExpiresAt   int64  `dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// PendingVerification is the transient client-side state while a code is awaited.
type PendingVerification struct {
	PhoneNumber string             `json:"phone_number"`
	Handle      string             `json:"-"`
	Code        [CodeLength]string `json:"code"`
	Error       string             `json:"error,omitempty"`
}
