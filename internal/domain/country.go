package domain

// CountryCode is one immutable catalog entry used to compose a full phone number.
type CountryCode struct {
	Name     string `json:"name"`
	DialCode string `json:"code"`
	ISO      string `json:"iso"`
	Emoji    string `json:"emoji"`
}
