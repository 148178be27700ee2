package calls

import "time"

// Call is the persisted record of one audio consultation.
//
// CallID is the public identifier handed to clients; ID is the storage key
// and never leaves the store.
type Call struct {
	ID            string `json:"-" db:"id"`
	CallID        string `json:"callId" db:"call_id"`
	AppointmentID string `json:"appointmentId" db:"appointment_id"`
	DoctorID      string `json:"doctorId" db:"doctor_id"`
	PatientID     string `json:"patientId" db:"patient_id"`

	Status Status `json:"status" db:"status"`

	StartTime *time.Time `json:"startTime,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" db:"end_time"`
	// EndReason is set for ended and declined calls, e.g. "participant_disconnected".
	EndReason string `json:"endReason,omitempty" db:"end_reason"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsParticipant reports whether userID is the doctor or the patient on the call.
func (c Call) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.DoctorID || userID == c.PatientID)
}

// Appointment is the slice of the booking the call manager needs.
type Appointment struct {
	ID               string `json:"id" db:"id"`
	DoctorID         string `json:"doctorId" db:"doctor_id"`
	PatientID        string `json:"patientId" db:"patient_id"`
	ConsultationMode string `json:"consultationMode" db:"consultation_mode"`
}

const ConsultationModeAudio = "audio"

// End reasons.
const (
	ReasonEndedByParticipant    = "ended_by_participant"
	ReasonParticipantDisconnect = "participant_disconnected"
	ReasonDeclinedByPatient     = "declined_by_patient"
	ReasonNoAnswer              = "no_answer"
	ReasonServerShutdown        = "server_shutdown"
)
