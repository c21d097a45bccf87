package enums

// ReservationStatus tracks a token-scoped stock hold. A hold ends either
// consumed or released, never both.
type ReservationStatus string

const (
	ReservationStatusHeld     ReservationStatus = "held"
	ReservationStatusConsumed ReservationStatus = "consumed"
	ReservationStatusReleased ReservationStatus = "released"
)

var reservationStatuses = []ReservationStatus{ReservationStatusHeld, ReservationStatusConsumed, ReservationStatusReleased}

func (r ReservationStatus) String() string { return string(r) }

func (r ReservationStatus) IsValid() bool { return known(reservationStatuses, r) }

func ParseReservationStatus(value string) (ReservationStatus, error) {
	return parse("reservation status", reservationStatuses, value)
}
