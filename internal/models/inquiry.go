package models

// Inquiry is one externally submitted contact-form row. Inquiries are
// read-only here and take no part in the booking lifecycle.
type Inquiry struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Purpose   string `json:"purpose"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}
