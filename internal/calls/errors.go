package calls

import "telehealth-platform/internal/apperr"

var (
	ErrNotFound            = apperr.NotFound("call not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrInvalidTransition   = apperr.New(apperr.KindInvalidStateTransition, "invalid call state transition")
	ErrActiveCallExists    = apperr.New(apperr.KindInvalidStateTransition, "a call for this appointment is already in progress")
	ErrNotAudioAppointment = apperr.Validation("appointment consultation mode is not audio")
	ErrMissingAppointment  = apperr.Validation("appointmentId is required")
	ErrMissingCallID       = apperr.Validation("callId is required")
	ErrDoctorOnly          = apperr.Authorization("only doctors can initiate calls")
	ErrNotYourAppointment  = apperr.Authorization("appointment does not belong to caller")
	ErrNotPatient          = apperr.Authorization("only the patient on the call can do this")
	ErrNotParticipant      = apperr.Authorization("caller is not a participant of this call")
	ErrCallCapReached      = apperr.New(apperr.KindUnavailable, "active call limit reached")
)
