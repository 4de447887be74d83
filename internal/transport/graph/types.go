// Package graph implements a Transport that sends emails via the Microsoft Graph API.
package graph

import (
	"strings"
)

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// recipientErrorCodes are Graph error codes that reject a message address.
var recipientErrorCodes = []string{
	"ErrorInvalidRecipients",
	"ErrorRecipientNotFound",
	"ErrorInvalidSmtpAddress",
}

// isRecipientError reports whether the error names a rejected address.
func (e graphError) isRecipientError() bool {
	for _, code := range recipientErrorCodes {
		if strings.EqualFold(e.Code, code) {
			return true
		}
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "recipient") || strings.Contains(msg, "address")
}
