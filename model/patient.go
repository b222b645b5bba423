package model

import "gorm.io/gorm"

// Patient represents a registered clinic patient
// @Description Patient information
type Patient struct {
	gorm.Model
	FullName       string `json:"full_name" gorm:"column:full_name;index" example:"John Doe"`
	Gender         string `json:"gender" gorm:"column:gender" example:"Male"`
	Age            int    `json:"age" gorm:"column:age" example:"30"`
	Job            string `json:"job" gorm:"column:job" example:"Engineer"`
	Address        string `json:"address" gorm:"column:address" example:"123 Main St"`
	PhoneNumber    string `json:"phone_number" gorm:"column:phone_number" example:"081234567890"`
	Email          string `json:"email" gorm:"column:email;size:191" example:"john@example.com"`
	HealthHistory  string `json:"health_history" gorm:"column:health_history" example:"Diabetes,Hypertension"`
	SurgeryHistory string `json:"surgery_history" gorm:"column:surgery_history" example:"Appendectomy 2020"`
	// PatientCode is issued once as YYYYMMDD-SSS and never reassigned, even after soft delete.
	PatientCode string `json:"patient_code" gorm:"column:patient_code;uniqueIndex;size:32;not null" example:"20231119-001"`
}
