package guard

import (
	"strings"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// llmTypes maps the lower-cased categories language models are asked to emit.
var llmTypes = map[string]privacy.PIIType{
	"name":            privacy.TypeName,
	"person":          privacy.TypeName,
	"email":           privacy.TypeEmail,
	"phone":           privacy.TypePhone,
	"address":         privacy.TypeAddress,
	"ssn":             privacy.TypeSSN,
	"social_security": privacy.TypeSSN,
	"credit_card":     privacy.TypeCreditCard,
	"date":            privacy.TypeDate,
	"date_of_birth":   privacy.TypeDate,
	"dob":             privacy.TypeDate,
	"ip":              privacy.TypeIPAddress,
	"ip_address":      privacy.TypeIPAddress,
	"driver_license":  privacy.TypeDriverLicense,
	"passport":        privacy.TypePassport,
	"bank_account":    privacy.TypeBankAccount,
}

var bedrockTypes = map[string]privacy.PIIType{
	"NAME":                      privacy.TypeName,
	"EMAIL":                     privacy.TypeEmail,
	"PHONE":                     privacy.TypePhone,
	"ADDRESS":                   privacy.TypeAddress,
	"SSN":                       privacy.TypeSSN,
	"US_SOCIAL_SECURITY_NUMBER": privacy.TypeSSN,
	"CREDIT_DEBIT_NUMBER":       privacy.TypeCreditCard,
	"IP_ADDRESS":                privacy.TypeIPAddress,
	"DATE_TIME":                 privacy.TypeDate,
	"DRIVER_ID":                 privacy.TypeDriverLicense,
	"PASSPORT_NUMBER":           privacy.TypePassport,
	"US_PASSPORT_NUMBER":        privacy.TypePassport,
	"BANK_ACCOUNT_NUMBER":       privacy.TypeBankAccount,
	"US_BANK_ACCOUNT_NUMBER":    privacy.TypeBankAccount,
}

var presidioTypes = map[string]privacy.PIIType{
	"PERSON":            privacy.TypeName,
	"EMAIL_ADDRESS":     privacy.TypeEmail,
	"PHONE_NUMBER":      privacy.TypePhone,
	"LOCATION":          privacy.TypeAddress,
	"US_SSN":            privacy.TypeSSN,
	"CREDIT_CARD":       privacy.TypeCreditCard,
	"IP_ADDRESS":        privacy.TypeIPAddress,
	"DATE_TIME":         privacy.TypeDate,
	"US_DRIVER_LICENSE": privacy.TypeDriverLicense,
	"US_PASSPORT":       privacy.TypePassport,
	"US_BANK_NUMBER":    privacy.TypeBankAccount,
	"IBAN_CODE":         privacy.TypeBankAccount,
}

func mapLLMType(s string) privacy.PIIType {
	if t, ok := llmTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return privacy.TypeCustom
}

func mapBedrockType(s string) privacy.PIIType {
	if t, ok := bedrockTypes[s]; ok {
		return t
	}
	return privacy.TypeCustom
}

func mapPresidioType(s string) privacy.PIIType {
	if t, ok := presidioTypes[s]; ok {
		return t
	}
	return privacy.TypeCustom
}
