// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema holds the table and column names of the relational schema so
// queries and configuration refer to one definition.
package schema

import "strings"

// UserAccountTable represents the 'users.account' table.
type UserAccountTable struct {
	Table              string
	ID                 string
	Email              string
	DisplayName        string
	PasswordHash       string
	ConfirmationToken  string
	ConfirmationSentAt string
	ConfirmedAt        string
	ResetToken         string
	ResetSentAt        string
	OTPLast            string
	CreatedAt          string
	UpdatedAt          string
}

// UserAccount is the schema definition for users.account.
var UserAccount = UserAccountTable{
	Table:              "users.account",
	ID:                 "id",
	Email:              "email",
	DisplayName:        "displayname",
	PasswordHash:       "passwordhash",
	ConfirmationToken:  "confirmationtoken",
	ConfirmationSentAt: "confirmationsentat",
	ConfirmedAt:        "confirmedat",
	ResetToken:         "resettoken",
	ResetSentAt:        "resetsentat",
	OTPLast:            "otplast",
	CreatedAt:          "createdat",
	UpdatedAt:          "updatedat",
}

// Columns returns all column names in scan order.
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.DisplayName, t.PasswordHash,
		t.ConfirmationToken, t.ConfirmationSentAt, t.ConfirmedAt,
		t.ResetToken, t.ResetSentAt, t.OTPLast,
		t.CreatedAt, t.UpdatedAt,
	}
}

// SelectList returns the comma separated column list used by SELECT statements.
func (t UserAccountTable) SelectList() string {
	return strings.Join(t.Columns(), ", ")
}
