package meta

// Response is a parsed meta protocol response.
// Either Status or Error is set, never both.
type Response struct {
	// Status is the response code: HD, VA, EN, NF, NS, EX, MN.
	Status StatusType

	// Data is the value of a VA response, nil otherwise.
	Data []byte

	// Flags are the flags returned after the status, in wire order.
	Flags Flags

	// Error is a *ReplyError for ERROR, CLIENT_ERROR and SERVER_ERROR lines.
	Error error
}

// OK reports a completed operation: HD, VA or MN.
func (r *Response) OK() bool {
	return r.Status == StatusHD || r.Status == StatusVA || r.Status == StatusMN
}

// IsMiss returns true for EN and NF.
func (r *Response) IsMiss() bool {
	return r.Status == StatusEN || r.Status == StatusNF
}

// Refused reports a write the server declined: NS (add on an existing key, replace
// on a missing one) or EX (CAS mismatch).
func (r *Response) Refused() bool {
	return r.Status == StatusNS || r.Status == StatusEX
}

func (r *Response) HasValue() bool {
	return r.Status == StatusVA && r.Data != nil
}

func (r *Response) HasError() bool {
	return r.Error != nil
}

// Flag returns the token of the first returned flag of type f.
func (r *Response) Flag(f FlagType) ([]byte, bool) {
	return r.Flags.Get(f)
}
