package payment

import "strings"

var declineMessages = map[string]string{
	"20087": "Invalid CVV and/or expiry date.",
	"20012": "The issuer has declined the transaction because it is invalid. The cardholder should contact their issuing bank.",
	"20013": "Invalid amount or amount exceeds maximum for card program.",
	"20003": "There was an error processing your credit card. Please verify the information and try again.",
	"20150": "Card not 3D Secure (3DS) enabled.",
	"20151": "Cardholder failed 3DS authentication.",
	"20155": "3DS authentication service provided invalid authentication result.",
}

const GenericDeclineMessage = "There was an issue with your payment. Please try again."

// DeclineMessage turns a processor response code into a customer facing
// reason prefixed with the code. Unknown codes keep the processor summary.
func DeclineMessage(code, summary string) string {
	code = strings.TrimSpace(code)
	summary = strings.TrimSpace(summary)

	msg, known := declineMessages[code]
	if !known {
		msg = summary
	}
	switch {
	case code == "":
		return summary
	case msg == "":
		return ""
	}
	return "Error " + code + ": " + msg
}
