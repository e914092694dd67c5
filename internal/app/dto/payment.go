package dto

type Checkout struct {
	BookingID string `json:"bookingId"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Amount    Money  `json:"amount"`
}

// PaymentResult reports whether a payment entry point moved the booking to paid.
type PaymentResult struct {
	Booking Booking `json:"booking"`
	Applied bool    `json:"applied"`
}

type WebhookAck struct {
	Received bool   `json:"received"`
	Event    string `json:"event,omitempty"`
	Applied  bool   `json:"applied"`
}

type ReconcileResult struct {
	Booking           Booking  `json:"booking"`
	Found             bool     `json:"found"`
	Applied           bool     `json:"applied"`
	ExtensionsApplied int      `json:"extensionsApplied"`
	PaymentReferences []string `json:"paymentReferences"`
}
