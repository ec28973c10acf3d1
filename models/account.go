package models

// Account is the legacy auth shim's user record, stored in DynamoDB. The
// shim predates the direct gateway path and only serves login, register and
// me lookups plus an aggregate CO2 counter.
type Account struct {
	UserID        string  `dynamodbav:"userId" json:"id"`
	Username      string  `dynamodbav:"username" json:"username"`
	Email         string  `dynamodbav:"email" json:"email"`
	PasswordHash  string  `dynamodbav:"passwordHash" json:"-"`
	CreatedAt     string  `dynamodbav:"createdAt" json:"created_at"`
	TotalCO2Saved float64 `dynamodbav:"totalCo2Saved" json:"total_co2_saved"`
}

// AccountsTable is the DynamoDB table name for legacy accounts.
const AccountsTable = "GreenupAccounts"

// AccountsEmailIndex is the GSI used to look accounts up by email.
const AccountsEmailIndex = "email-index"

// AccountsUsernameIndex is the GSI used to look accounts up by username.
const AccountsUsernameIndex = "username-index"
